// Package keys holds the API credentials used by request variants.
//
// Keys are held exclusively by the Orchestrator and handed to the request
// capability on each attempt; they are never exposed to callers.
package keys

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names read by FromEnv.
const (
	EnvAPIKey = "OPENAI_API_KEY"
	EnvOrgID  = "OPENAI_ORG_ID"
)

// ErrMissingAPIKey is returned by FromEnv when no API key is present in the
// environment.
var ErrMissingAPIKey = errors.New("keys: " + EnvAPIKey + " is not set")

// Keys holds one set of opaque API credentials.
type Keys struct {
	// APIKey is the secret bearer token for the remote API.
	APIKey string

	// OrgID optionally selects an organization. Empty means the account
	// default.
	OrgID string

	// BaseURL optionally overrides the API endpoint, for OpenAI-compatible
	// gateways and tests. Empty means the official endpoint.
	BaseURL string
}

// New creates a Keys value from an explicit API key and optional org ID.
func New(apiKey, orgID string) Keys {
	return Keys{APIKey: apiKey, OrgID: orgID}
}

// FromEnv loads a .env file if one is present, then reads credentials from
// the environment. The org ID is optional.
func FromEnv() (Keys, error) {
	// A missing .env file is not an error; the variables may already be
	// exported in the environment.
	_ = godotenv.Load()

	apiKey := os.Getenv(EnvAPIKey)
	if apiKey == "" {
		return Keys{}, ErrMissingAPIKey
	}

	return Keys{
		APIKey: apiKey,
		OrgID:  os.Getenv(EnvOrgID),
	}, nil
}
