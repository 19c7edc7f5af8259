package orch

import "errors"

var (
	// Construction errors.
	ErrInvalidPolicy = errors.New("orch: invalid policy")

	// Lifecycle errors.
	ErrClosed = errors.New("orch: orchestrator closed")

	// Response decoding errors.
	ErrDecodeMismatch = errors.New("orch: response payload does not match requested type")
)
