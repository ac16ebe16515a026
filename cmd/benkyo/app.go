package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/embedding"
	"github.com/hyperjump/benkyo/internal/indexer"
	"github.com/hyperjump/benkyo/internal/llm"
	"github.com/hyperjump/benkyo/internal/rag"
	"github.com/hyperjump/benkyo/internal/session"
	"github.com/hyperjump/benkyo/internal/storage"
	"go.uber.org/zap"
)

const defaultConfigPath = "/usr/local/etc/benkyo/config.yaml"

// cliSessionID keeps history of direct (serverless) CLI use in one session across runs.
const cliSessionID = "cli"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists, and a missing default file falls back to
// built-in defaults relative to the current directory.
// Returns the config and the path that was loaded, empty when defaults were used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embedding.Embedder
	engine   *rag.Engine
	indexer  *indexer.Indexer
	history  *storage.SQLiteHistory
	session  *session.Session
}

// unavailableGenerator stands in when no generation API key is configured, so
// ingestion and inspection still work.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return nil, g.err
}

func newApp(cfg *config.Config, logger *zap.Logger, opts ...session.Option) (*app, error) {
	embedder, err := embedding.NewEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	kb, report := rag.OpenKnowledgeBase(cfg.Storage.IndexPath, cfg.Storage.MetadataPath)
	switch report.Status {
	case rag.LoadRecovered:
		logger.Warn("knowledge base recovered", zap.String("warning", report.Warning))
	case rag.LoadRestored:
		logger.Info("knowledge base loaded", zap.Int("fragments", report.Entries), zap.Int("dimensions", kb.Dimensions()))
	default:
		logger.Info("knowledge base is empty", zap.String("index_path", cfg.Storage.IndexPath))
	}

	var generator llm.Generator
	gen, err := llm.NewOpenAIGenerator(llm.OpenAIOptions{
		APIKey:      cfg.Generation.APIKey(),
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})
	if err != nil {
		logger.Warn("answer generation disabled", zap.String("api_key_env", cfg.Generation.APIKeyEnv), zap.Error(err))
		generator = unavailableGenerator{err: fmt.Errorf("%w (set %s)", err, cfg.Generation.APIKeyEnv)}
	} else {
		generator = gen
	}

	engine := rag.NewEngine(embedder, kb, generator,
		rag.WithLogger(logger),
		rag.WithTopK(cfg.Retrieval.TopK),
	)
	idx := indexer.NewIndexer(engine, &cfg.Chunking, &cfg.Ingest, indexer.WithLogger(logger))

	history, err := storage.NewSQLiteHistory(cfg.Storage.HistoryPath)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		engine:   engine,
		indexer:  idx,
		history:  history,
		session:  session.New(engine, idx, history, &cfg.Retrieval, opts...),
	}, nil
}

func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.embedder != nil {
		if cr, ok := a.embedder.(embedding.CacheReporter); ok {
			hits, misses, size := cr.CacheStats()
			a.logger.Debug("embedding cache", zap.Int64("hits", hits), zap.Int64("misses", misses), zap.Int("size", size))
		}
		_ = a.embedder.Close()
	}
}
