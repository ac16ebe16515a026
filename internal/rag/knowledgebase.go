// Package rag pairs the vector index with its fragment metadata and answers
// questions from the retrieved fragments.
package rag

import (
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/storage"
	"github.com/hyperjump/benkyo/internal/vector"
	"github.com/hyperjump/benkyo/pkg/utils"
)

// ErrInconsistent is returned when the index and the metadata store disagree.
var ErrInconsistent = errors.New("knowledge base index and metadata are out of step")

// LoadStatus describes what OpenKnowledgeBase found on disk.
type LoadStatus int

const (
	// LoadEmpty means no persisted entries were found.
	LoadEmpty LoadStatus = iota
	// LoadRestored means both files were read and agree.
	LoadRestored
	// LoadRecovered means the persisted state was unusable and was discarded.
	LoadRecovered
)

func (s LoadStatus) String() string {
	switch s {
	case LoadEmpty:
		return "empty"
	case LoadRestored:
		return "restored"
	case LoadRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("LoadStatus(%d)", int(s))
	}
}

// LoadReport is the outcome of OpenKnowledgeBase. Warning is set when Status is LoadRecovered.
type LoadReport struct {
	Status  LoadStatus
	Entries int
	Warning string
}

// Hit is a search result resolved to its fragment.
type Hit struct {
	Position int
	Distance float64
	Fragment models.Fragment
}

// KnowledgeBase keeps a FlatIndex and a MetadataStore in lockstep: vector i
// belongs to fragment i. Both are appended together and flushed together.
// It is not safe for concurrent use.
type KnowledgeBase struct {
	index        *vector.FlatIndex
	metadata     *storage.MetadataStore
	indexPath    string
	metadataPath string
}

// OpenKnowledgeBase loads the index and metadata files. It never fails: missing
// files give an empty knowledge base, and unreadable or disagreeing files give an
// empty knowledge base with a warning. The files on disk are left as they are
// until the next write replaces them.
func OpenKnowledgeBase(indexPath, metadataPath string) (*KnowledgeBase, LoadReport) {
	kb := &KnowledgeBase{
		index:        vector.NewFlatIndex(),
		metadata:     storage.NewMetadataStore(),
		indexPath:    indexPath,
		metadataPath: metadataPath,
	}

	indexFound, indexErr := kb.index.Load(indexPath)
	metaFound, metaErr := kb.metadata.Load(metadataPath)

	var warning string
	switch {
	case indexErr != nil:
		warning = fmt.Sprintf("vector index %s unusable: %v", indexPath, indexErr)
	case metaErr != nil:
		warning = fmt.Sprintf("metadata %s unusable: %v", metadataPath, metaErr)
	case kb.index.Size() != kb.metadata.Len():
		warning = fmt.Sprintf("vector index has %d entries but metadata has %d", kb.index.Size(), kb.metadata.Len())
	}
	if warning != "" {
		kb.index.Clear()
		kb.metadata.Clear()
		return kb, LoadReport{Status: LoadRecovered, Warning: warning + "; starting with an empty knowledge base"}
	}
	if (!indexFound && !metaFound) || kb.Len() == 0 {
		return kb, LoadReport{Status: LoadEmpty}
	}
	return kb, LoadReport{Status: LoadRestored, Entries: kb.Len()}
}

// Append adds vectors and their fragments, then flushes both files. Counts and
// dimensions are checked before anything changes. If the flush fails the
// in-memory append is undone and the error returned.
func (kb *KnowledgeBase) Append(vectors [][]float32, fragments []models.Fragment) error {
	if len(vectors) != len(fragments) {
		return fmt.Errorf("%w: %d vectors for %d fragments", ErrInconsistent, len(vectors), len(fragments))
	}
	if len(vectors) == 0 {
		return nil
	}
	prev := kb.Len()
	if err := kb.index.Add(vectors); err != nil {
		return err
	}
	kb.metadata.Append(fragments)

	if err := kb.flush(); err != nil {
		kb.index.Truncate(prev)
		kb.metadata.Truncate(prev)
		var partial *partialFlushError
		if errors.As(err, &partial) {
			// The new index blob is on disk next to the old metadata; put the old index back.
			if restoreErr := kb.index.Save(kb.indexPath); restoreErr != nil {
				return fmt.Errorf("%w (restoring index: %v)", err, restoreErr)
			}
		}
		return err
	}
	return nil
}

// Reset discards every entry and flushes the empty state. The dimension is unset
// so the next append may use any dimension.
func (kb *KnowledgeBase) Reset() error {
	kb.index.Clear()
	kb.metadata.Clear()
	return kb.flush()
}

// Search returns the k nearest fragments to query.
func (kb *KnowledgeBase) Search(query []float32, k int) ([]Hit, error) {
	results, err := kb.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		f, err := kb.metadata.Get(r.Position)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInconsistent, err)
		}
		hits = append(hits, Hit{Position: r.Position, Distance: r.Distance, Fragment: f})
	}
	return hits, nil
}

// Len returns the number of entries.
func (kb *KnowledgeBase) Len() int {
	return kb.metadata.Len()
}

// Dimensions returns the vector dimension, or 0 when empty.
func (kb *KnowledgeBase) Dimensions() int {
	return kb.index.Dimensions()
}

// Summarize returns the fragment count per source.
func (kb *KnowledgeBase) Summarize() map[string]int {
	return kb.metadata.Summarize()
}

// Paths returns the index and metadata file paths.
func (kb *KnowledgeBase) Paths() (indexPath, metadataPath string) {
	return kb.indexPath, kb.metadataPath
}

// partialFlushError reports a flush that replaced the index file but not the metadata file.
type partialFlushError struct {
	err error
}

func (e *partialFlushError) Error() string {
	return "flush metadata after index: " + e.err.Error()
}

func (e *partialFlushError) Unwrap() error { return e.err }

// flush stages both files before renaming either, so a failure while encoding or
// writing leaves the previous pair untouched.
func (kb *KnowledgeBase) flush() error {
	indexData, err := kb.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode vector index: %w", err)
	}
	metaData, err := kb.metadata.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	indexTmp, err := utils.StageFile(kb.indexPath, indexData)
	if err != nil {
		return fmt.Errorf("stage vector index: %w", err)
	}
	metaTmp, err := utils.StageFile(kb.metadataPath, metaData)
	if err != nil {
		_ = os.Remove(indexTmp)
		return fmt.Errorf("stage metadata: %w", err)
	}
	if err := os.Rename(indexTmp, kb.indexPath); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("commit vector index: %w", err)
	}
	if err := os.Rename(metaTmp, kb.metadataPath); err != nil {
		_ = os.Remove(metaTmp)
		return &partialFlushError{err: err}
	}
	return nil
}
