// Package embed provides a request variant for OpenAI embedding models.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/johnbchron/openai-orch/api"
	"github.com/johnbchron/openai-orch/keys"
	"github.com/johnbchron/openai-orch/request"
)

// EmbeddingSize is the dimensionality of text-embedding-ada-002 vectors.
const EmbeddingSize = 1536

// Compile-time interface check.
var _ request.Request = (*EmbeddingRequest)(nil)

// ErrEmptyEmbedding is returned when the API responds without any
// embedding data.
var ErrEmptyEmbedding = errors.New("embed: response contains no embedding")

// EmbeddingRequest embeds a single input string with
// text-embedding-ada-002.
type EmbeddingRequest struct {
	Input string
}

// EmbeddingResponse is the embedding vector, EmbeddingSize elements long.
type EmbeddingResponse []float32

// NewEmbeddingRequest creates an embedding request for the given input.
func NewEmbeddingRequest(input string) *EmbeddingRequest {
	return &EmbeddingRequest{Input: input}
}

// Execute implements request.Request. It performs exactly one embedding
// call; timeout and retry discipline belong to the dispatcher.
func (r *EmbeddingRequest) Execute(ctx context.Context, creds keys.Keys) (any, error) {
	client := api.NewClient(creds)

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.AdaEmbeddingV2,
		Input: []string{r.Input},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != EmbeddingSize {
		return nil, fmt.Errorf("embed: expected %d dimensions, got %d", EmbeddingSize, len(embedding))
	}
	return EmbeddingResponse(embedding), nil
}
