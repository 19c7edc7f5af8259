// Package id defines the TypeID-based identity type for orchestrated
// requests.
//
// Request IDs are K-sortable (UUIDv7-based), globally unique, and URL-safe
// in the format "req_suffix". An ID is generated once at submission time
// and never reused.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PrefixRequest is the TypeID prefix for request identifiers.
const PrefixRequest = "req"

// RequestID is the opaque identifier returned by Orchestrator.Submit and
// used as the only key into the request ledger.
type RequestID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value RequestID.
var Nil RequestID

// NewRequestID generates a new globally unique request ID.
func NewRequestID() RequestID {
	tid, err := typeid.Generate(PrefixRequest)
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", PrefixRequest, err))
	}

	return RequestID{inner: tid, valid: true}
}

// Parse parses a request ID string (e.g. "req_01h2xcejqtf2nbrexx3vqjhp41")
// and validates its prefix.
func Parse(s string) (RequestID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != PrefixRequest {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", PrefixRequest, tid.Prefix())
	}

	return RequestID{inner: tid, valid: true}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) RequestID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns the full TypeID string representation (req_suffix).
// Returns an empty string for the Nil ID.
func (i RequestID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i RequestID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i RequestID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *RequestID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
