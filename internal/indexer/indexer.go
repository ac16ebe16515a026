// Package indexer splits extracted document pages into fragments and feeds them
// to the knowledge base.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/extract"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/pkg/utils"
)

var (
	// ErrNoContent is returned when a document yields no fragments.
	ErrNoContent = errors.New("no text could be extracted")
	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrExtensionNotAllowed is returned for file types outside the allowed list.
	ErrExtensionNotAllowed = errors.New("extension not allowed")
	// ErrDuplicateSource is returned when the knowledge base already holds fragments of the source.
	ErrDuplicateSource = errors.New("source already ingested")
)

// Sink receives split fragments. The rag engine implements it.
type Sink interface {
	AddDocuments(ctx context.Context, fragments []models.Fragment) error
	DocumentsInfo() models.DocumentsInfo
}

// PageExtractor returns the ordered pages of a file.
type PageExtractor interface {
	ExtractPages(path string) ([]models.Page, error)
}

// Indexer turns files and raw text into fragments and adds them to a Sink.
type Indexer struct {
	sink        Sink
	chunker     *Chunker
	extractor   PageExtractor
	maxFileSize int64
	extensions  []string
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingest events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor replaces the default page extractor.
func WithExtractor(e PageExtractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// NewIndexer creates an indexer using the chunking and ingest settings.
func NewIndexer(sink Sink, chunking *config.ChunkingConfig, ingest *config.IngestConfig, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		sink:        sink,
		chunker:     NewChunker(chunking.ChunkSize, chunking.ChunkOverlap),
		extractor:   extract.NewExtractor(),
		maxFileSize: ingest.MaxFileSize,
		extensions:  ingest.Extensions,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Extensions returns the file extensions the indexer accepts.
func (idx *Indexer) Extensions() []string {
	return idx.extensions
}

// SplitPages preprocesses and splits every non-blank page of source.
// LocalIndex restarts at 0 on each page.
func (idx *Indexer) SplitPages(source string, pages []models.Page) ([]models.Fragment, map[int]int) {
	var fragments []models.Fragment
	perPage := make(map[int]int)
	for _, p := range pages {
		text := Preprocess(p.Text)
		if text == "" {
			continue
		}
		chunks := idx.chunker.Chunk(text, source, p.Number)
		fragments = append(fragments, chunks...)
		perPage[p.Number] = len(chunks)
	}
	return fragments, perPage
}

// IndexFile checks, extracts, splits and adds the file at path. The fragment
// source is the file's base name.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*models.IngestResult, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	if err := idx.checkFile(path); err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	if _, ok := idx.sink.DocumentsInfo().Documents[source]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source)
	}
	pages, err := idx.extractor.ExtractPages(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", source, err)
	}
	return idx.ingest(ctx, source, pages)
}

// IndexText adds raw text as page 1 of source.
func (idx *Indexer) IndexText(ctx context.Context, source, text string) (*models.IngestResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", models.ErrInvalidInput)
	}
	if _, ok := idx.sink.DocumentsInfo().Documents[source]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source)
	}
	return idx.ingest(ctx, source, []models.Page{{Number: 1, Text: text}})
}

func (idx *Indexer) ingest(ctx context.Context, source string, pages []models.Page) (*models.IngestResult, error) {
	fragments, perPage := idx.SplitPages(source, pages)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrNoContent, source)
	}
	if err := idx.sink.AddDocuments(ctx, fragments); err != nil {
		return nil, fmt.Errorf("add %s: %w", source, err)
	}
	idx.logger.Info("document ingested",
		zap.String("source", source),
		zap.Int("pages", len(pages)),
		zap.Int("fragments", len(fragments)),
	)
	return &models.IngestResult{
		Source:    source,
		Pages:     len(pages),
		Fragments: len(fragments),
		PerPage:   perPage,
	}, nil
}

func (idx *Indexer) checkFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
		return fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	if idx.maxFileSize > 0 && info.Size() > idx.maxFileSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, filepath.Base(path), info.Size(), idx.maxFileSize)
	}
	return nil
}

// IndexDirectory walks dir recursively and indexes each regular file with an
// allowed extension. Files that fail are logged and skipped; sources already
// present are skipped silently. Returns the results of the files indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) ([]*models.IngestResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	var results []*models.IngestResult
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(idx.extensions) > 0 && !extensionAllowed(filepath.Ext(path), idx.extensions) {
			return nil
		}
		res, err := idx.IndexFile(ctx, path)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, ErrDuplicateSource):
			idx.logger.Debug("indexer skipping known source", zap.String("path", path))
		default:
			idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	return results, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
