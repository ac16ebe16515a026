// Package session ties the engine, the ingestion pipeline and the conversation
// history together behind one lock.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/indexer"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/rag"
	"github.com/hyperjump/benkyo/internal/storage"
	"github.com/hyperjump/benkyo/pkg/utils"
	"go.uber.org/zap"
)

// Session owns one engine and its history. Every method takes the session lock,
// so HTTP handlers and watcher callbacks never touch the knowledge base at once.
type Session struct {
	id      string
	mu      sync.Mutex
	engine  *rag.Engine
	indexer *indexer.Indexer
	history storage.History
	topK    int
	maxTopK int
	logger  *zap.Logger
	started time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID fixes the session ID instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Status is a snapshot of the session and its persisted state.
type Status struct {
	SessionID      string            `json:"session_id"`
	Fragments      int               `json:"fragments"`
	Documents      map[string]int    `json:"documents"`
	Dimensions     int               `json:"dimensions"`
	HistoryEntries int64             `json:"history_entries"`
	Disk           storage.Footprint `json:"disk"`
	DiskUsageBytes int64             `json:"disk_usage_bytes"`
	Uptime         string            `json:"uptime"`
}

// New builds a session. The indexer's sink must be engine. history may be nil,
// in which case nothing is recorded.
func New(engine *rag.Engine, idx *indexer.Indexer, history storage.History, retrieval *config.RetrievalConfig, opts ...Option) *Session {
	s := &Session{
		id:      uuid.New().String(),
		engine:  engine,
		indexer: idx,
		history: history,
		topK:    rag.DefaultTopK,
		started: time.Now(),
	}
	if retrieval != nil {
		if retrieval.TopK > 0 {
			s.topK = retrieval.TopK
		}
		s.maxTopK = retrieval.MaxTopK
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger).With(zap.String("session", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Ask answers req and records the exchange. A failure to record is logged, not returned.
func (s *Session) Ask(ctx context.Context, req models.QueryRequest) (*models.Answer, error) {
	if err := req.Validate(s.topK, s.maxTopK); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	answer, err := s.engine.Query(ctx, req.Question, req.TopK)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		it := &models.Interaction{
			ID:        uuid.New().String(),
			SessionID: s.id,
			Query:     req.Question,
			Answer:    answer.Answer,
			Sources:   answer.Sources,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.history.Record(ctx, it); err != nil {
			s.logger.Warn("failed to record interaction", zap.Error(err))
		}
	}
	return answer, nil
}

// IngestFile extracts, splits and adds the file at path.
func (s *Session) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexer.IndexFile(ctx, path)
}

// IngestText splits and adds raw text under source.
func (s *Session) IngestText(ctx context.Context, source, text string) (*models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexer.IndexText(ctx, source, text)
}

// IngestDirectory adds every supported file under dir. Files that fail are skipped.
func (s *Session) IngestDirectory(ctx context.Context, dir string) ([]*models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexer.IndexDirectory(ctx, dir)
}

// AddFragments stores fragments that were split elsewhere.
func (s *Session) AddFragments(ctx context.Context, fragments []models.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AddDocuments(ctx, fragments)
}

// Clear empties the knowledge base and this session's history.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.ClearDocuments(ctx); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.ClearSession(ctx, s.id); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
	}
	return nil
}

// Info reports what the knowledge base holds.
func (s *Session) Info() models.DocumentsInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.DocumentsInfo()
}

// History returns up to limit interactions of this session, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]*models.Interaction, error) {
	if s.history == nil {
		return []*models.Interaction{}, nil
	}
	return s.history.List(ctx, s.id, limit)
}

// DeleteInteraction removes one history entry.
func (s *Session) DeleteInteraction(ctx context.Context, id string) error {
	if s.history == nil {
		return fmt.Errorf("%w: interaction %s", storage.ErrNotFound, id)
	}
	return s.history.Delete(ctx, id)
}

// Status reports counts, the vector dimension and the disk usage of the persisted files.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	kb := s.engine.KnowledgeBase()
	info := s.engine.DocumentsInfo()
	dims := kb.Dimensions()
	indexPath, metaPath := kb.Paths()
	s.mu.Unlock()

	st := &Status{
		SessionID:  s.id,
		Fragments:  info.TotalFragments,
		Documents:  info.Documents,
		Dimensions: dims,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	}
	if s.history != nil {
		n, err := s.history.Count(ctx, s.id)
		if err != nil {
			return nil, fmt.Errorf("count history: %w", err)
		}
		st.HistoryEntries = n
	}
	var historyPath string
	if s.history != nil {
		historyPath = s.history.Path()
	}
	disk, err := storage.MeasureFootprint(indexPath, metaPath, historyPath)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	st.Disk = disk
	st.DiskUsageBytes = disk.Total()
	return st, nil
}
