// Package retrieval maintains the per-user durable document index:
// ingestion, summarization, query and deletion.
package retrieval

import (
	"context"
	"errors"
)

// ErrNoResults is returned when a query finds nothing, either because the
// owner's collection is empty or nothing matched.
var ErrNoResults = errors.New("no matching documents")

// ErrNoContent is returned when an ingestion source or summarization input
// yields no text.
var ErrNoContent = errors.New("no content")

// Chunk is a fixed-size span of a source document, the unit of embedding
// and retrieval.
type Chunk struct {
	ID       string
	OwnerID  string
	Source   string
	Content  string
	Position int
}

// Answer is the result of a retrieval-augmented query.
type Answer struct {
	Text    string
	Sources string
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Completer produces a completion for one prompt. The store uses it for
// summarization and answer generation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
