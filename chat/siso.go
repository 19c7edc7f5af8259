package chat

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/johnbchron/openai-orch/api"
	"github.com/johnbchron/openai-orch/keys"
	"github.com/johnbchron/openai-orch/request"
)

// Compile-time interface checks.
var (
	_ request.Request       = (*SisoRequest)(nil)
	_ request.TimeoutHinter = (*SisoRequest)(nil)
)

// ErrEmptyCompletion is returned when the API responds without any choice
// content.
var ErrEmptyCompletion = errors.New("chat: response contains no completion")

// SisoRequest is a single-input-single-output chat request: one system
// prompt plus one user prompt producing one completion.
type SisoRequest struct {
	SystemPrompt string
	UserPrompt   string
	Params       ModelParams
}

// SisoResponse is the completion text of a SisoRequest.
type SisoResponse string

// String returns the completion text.
func (r SisoResponse) String() string { return string(r) }

// NewSisoRequest creates a SISO chat request.
func NewSisoRequest(systemPrompt, userPrompt string, params ModelParams) *SisoRequest {
	return &SisoRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Params:       params,
	}
}

// Execute implements request.Request. It performs exactly one completion
// call; timeout and retry discipline belong to the dispatcher.
func (r *SisoRequest) Execute(ctx context.Context, creds keys.Keys) (any, error) {
	client := api.NewClient(creds)

	resp, err := client.CreateChatCompletion(ctx, r.buildRequest())
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyCompletion
	}
	return SisoResponse(resp.Choices[0].Message.Content), nil
}

// TimeoutHint implements request.TimeoutHinter, scaling the attempt
// deadline with the expected completion size.
func (r *SisoRequest) TimeoutHint() time.Duration {
	return timeoutHint(r.Params.MaxTokens, len(r.SystemPrompt)+len(r.UserPrompt))
}

func (r *SisoRequest) buildRequest() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: r.Params.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: r.UserPrompt},
		},
		Temperature:      r.Params.Temperature,
		TopP:             r.Params.TopP,
		MaxTokens:        r.Params.MaxTokens,
		Stop:             r.Params.Stop,
		FrequencyPenalty: r.Params.FrequencyPenalty,
		PresencePenalty:  r.Params.PresencePenalty,
	}
}
