// Package chat provides request variants for OpenAI chat models. The SISO
// (single-input-single-output) variant maps one system prompt and one user
// prompt to one completion string.
package chat

import "time"

// ModelParams holds the sampling parameters common to all chat models.
type ModelParams struct {
	Model            string
	Temperature      float32
	TopP             float32
	Stop             []string
	MaxTokens        int
	FrequencyPenalty float32
	PresencePenalty  float32
}

// DefaultModelParams returns conservative defaults: gpt-3.5-turbo,
// temperature 0, 256 max tokens.
func DefaultModelParams() ModelParams {
	return ModelParams{
		Model:       "gpt-3.5-turbo",
		Temperature: 0.0,
		TopP:        1.0,
		MaxTokens:   256,
	}
}

// timeoutHint estimates how long a completion of maxTokens tokens over
// promptChars prompt characters should reasonably take: 10 seconds per 512
// expected tokens, counting roughly 4 characters per prompt token. The
// dispatcher caps this with the policy timeout, so the hint can only
// tighten the deadline.
func timeoutHint(maxTokens, promptChars int) time.Duration {
	expected := float64(maxTokens) + float64(promptChars)/4.0
	return time.Duration(10 * float64(time.Second) * expected / 512.0)
}
