// Package api constructs the OpenAI API client used by the bundled
// request variants.
package api

import (
	"github.com/sashabaranov/go-openai"

	"github.com/johnbchron/openai-orch/keys"
)

// NewClient builds an OpenAI client from the given credentials. The org ID
// and base URL are applied only when set.
func NewClient(creds keys.Keys) *openai.Client {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.OrgID != "" {
		cfg.OrgID = creds.OrgID
	}
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}
