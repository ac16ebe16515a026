package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIBatchSize = 256

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	cache      *EmbeddingCache
}

// NewOpenAIEmbedder creates a client for the configured endpoint and model.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai embedder: API key is not set")
	}
	if opts.Model == "" || opts.Dimensions <= 0 {
		return nil, fmt.Errorf("openai embedder: model %q and dimensions %d are required", opts.Model, opts.Dimensions)
	}
	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultOpenAIBatchSize
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		batchSize:  batchSize,
		cache:      NewEmbeddingCache(opts.CacheSize),
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs. Cached texts
// are not sent.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if v, ok := e.cache.Get(text); ok {
			out[i] = v
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		batch := pending[start:end]
		input := make([]string, len(batch))
		for j, idx := range batch {
			input[j] = texts[idx]
		}
		vectors, err := e.request(ctx, input)
		if err != nil {
			return nil, err
		}
		for j, idx := range batch {
			out[idx] = vectors[j]
			e.cache.Set(texts[idx], vectors[j])
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, input []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("%w: requested %d vectors, got %d", ErrBadResponse, len(input), len(resp.Data))
	}
	vectors := make([][]float32, len(input))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(input) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad or duplicate index %d", ErrBadResponse, d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrBadResponse, e.dimensions, len(d.Embedding))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// CacheStats reports the embedding cache hit and miss counts and its size.
func (e *OpenAIEmbedder) CacheStats() (hits, misses int64, size int) {
	hits, misses = e.cache.Stats()
	return hits, misses, e.cache.Len()
}
