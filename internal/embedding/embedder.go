// Package embedding turns text into fixed-dimension vectors. It provides a local
// ONNX Runtime model, an OpenAI-compatible remote client, and a deterministic mock.
package embedding

import (
	"context"
	"errors"
)

// ErrBadResponse is returned when a provider answers with the wrong number of
// vectors or vectors of the wrong dimension.
var ErrBadResponse = errors.New("unexpected embedding response")

// Embedder produces vector embeddings for text. Every vector an Embedder returns
// has Dimensions() elements.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// CacheReporter is implemented by embedders that keep an embedding cache.
type CacheReporter interface {
	CacheStats() (hits, misses int64, size int)
}
