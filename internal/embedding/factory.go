package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/pkg/utils"
)

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	switch cfg.Provider {
	case config.ProviderONNX:
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Dimensions:        cfg.Dimensions,
			MaxTokens:         cfg.MaxTokens,
			CacheSize:         cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("onnx embedder ready", zap.String("model_path", cfg.ModelPath), zap.Int("dimensions", cfg.Dimensions))
		return e, nil
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     cfg.APIKey(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			CacheSize:  cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("openai embedder ready", zap.String("model", cfg.Model), zap.Int("dimensions", cfg.Dimensions))
		return e, nil
	case config.ProviderMock:
		logger.Warn("using mock embedder; retrieval quality is not meaningful", zap.Int("dimensions", cfg.Dimensions))
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
