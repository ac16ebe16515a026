package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/benkyo/internal/embedding"
	"github.com/hyperjump/benkyo/internal/llm"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/pkg/utils"
	"go.uber.org/zap"
)

// ErrInvalidFragment is returned when a fragment handed to AddDocuments is missing a required field.
var ErrInvalidFragment = errors.New("invalid fragment")

// NoDocumentsAnswer is returned for any question asked of an empty knowledge base.
const NoDocumentsAnswer = "No relevant documents found in the knowledge base."

// DefaultTopK is the number of fragments retrieved when the caller does not ask for a count.
const DefaultTopK = 4

// Engine embeds fragments into the knowledge base and answers questions from it.
// Like KnowledgeBase it has no locking of its own; callers serialize access.
type Engine struct {
	embedder    embedding.Embedder
	kb          *KnowledgeBase
	generator   llm.Generator
	logger      *zap.Logger
	topK        int
	instruction string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTopK sets the default number of retrieved fragments.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithInstruction replaces the system instruction sent with every question.
func WithInstruction(instruction string) EngineOption {
	return func(e *Engine) {
		if instruction != "" {
			e.instruction = instruction
		}
	}
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(embedder embedding.Embedder, kb *KnowledgeBase, generator llm.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:    embedder,
		kb:          kb,
		generator:   generator,
		topK:        DefaultTopK,
		instruction: llm.DefaultInstruction,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// AddDocuments embeds fragments and appends them to the knowledge base in input order.
// Nothing is stored unless every fragment is valid, embedding succeeds for all of
// them, and the knowledge base is persisted.
func (e *Engine) AddDocuments(ctx context.Context, fragments []models.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	texts := make([]string, len(fragments))
	for i := range fragments {
		if err := fragments[i].Validate(); err != nil {
			return fmt.Errorf("%w at %d: %w", ErrInvalidFragment, i, err)
		}
		texts[i] = fragments[i].Text
	}

	start := time.Now()
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed fragments: %w", err)
	}
	if len(vectors) != len(fragments) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d fragments", embedding.ErrBadResponse, len(vectors), len(fragments))
	}
	if err := e.kb.Append(vectors, fragments); err != nil {
		return fmt.Errorf("append to knowledge base: %w", err)
	}
	e.logger.Debug("fragments added",
		zap.Int("count", len(fragments)),
		zap.Int("total", e.kb.Len()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// ClearDocuments empties the knowledge base. Clearing an empty knowledge base is a no-op success.
func (e *Engine) ClearDocuments(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.kb.Reset(); err != nil {
		return fmt.Errorf("clear knowledge base: %w", err)
	}
	e.logger.Info("knowledge base cleared")
	return nil
}

// Query answers question from the topK closest fragments. topK <= 0 uses the default.
func (e *Engine) Query(ctx context.Context, question string, topK int) (*models.Answer, error) {
	if e.kb.Len() == 0 {
		return &models.Answer{Answer: NoDocumentsAnswer, Sources: []models.Fragment{}}, nil
	}
	if topK <= 0 {
		topK = e.topK
	}

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := e.kb.Search(queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}
	sources := make([]models.Fragment, len(hits))
	for i, h := range hits {
		sources[i] = h.Fragment
	}

	resp, err := e.generator.Generate(ctx, llm.Request{
		Instruction: e.instruction,
		Context:     BuildContext(sources),
		Question:    question,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	e.logger.Debug("question answered",
		zap.Int("sources", len(sources)),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))
	return &models.Answer{Answer: resp.Answer, Sources: sources}, nil
}

// DocumentsInfo reports the fragment total and the per-source counts.
func (e *Engine) DocumentsInfo() models.DocumentsInfo {
	return models.DocumentsInfo{
		TotalFragments: e.kb.Len(),
		Documents:      e.kb.Summarize(),
	}
}

// KnowledgeBase returns the underlying knowledge base.
func (e *Engine) KnowledgeBase() *KnowledgeBase {
	return e.kb
}
