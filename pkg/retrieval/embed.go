package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/otarik/minerva/pkg/retry"
)

const embeddingDimension = 1536 // text-embedding-3-small

// OpenAIEmbedder implements Embedder on the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
	retry  *retry.Executor
}

// NewOpenAIEmbedder creates an embedder using text-embedding-3-small.
func NewOpenAIEmbedder(client openai.Client, exec *retry.Executor) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  openai.EmbeddingModelTextEmbedding3Small,
		retry:  exec,
	}
}

// Dimension returns the embedding vector size.
func (e *OpenAIEmbedder) Dimension() int { return embeddingDimension }

// Embed generates one embedding per input text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	return retry.Do1(ctx, e.retry, func(ctx context.Context) ([][]float32, error) {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: e.model,
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		if err != nil {
			return nil, retry.FromOpenAI(err)
		}

		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		embeddings := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			embeddings[i] = vec
		}
		return embeddings, nil
	})
}
