package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/pkg/utils"
)

// MetadataStore keeps fragments in storage-position order so that position i
// describes vector i of the paired index. It is not safe for concurrent use.
type MetadataStore struct {
	fragments []models.Fragment
}

// NewMetadataStore returns an empty store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{}
}

// Append adds fragments to the end in order.
func (s *MetadataStore) Append(fragments []models.Fragment) {
	s.fragments = append(s.fragments, fragments...)
}

// Get returns the fragment at position.
func (s *MetadataStore) Get(position int) (models.Fragment, error) {
	if position < 0 || position >= len(s.fragments) {
		return models.Fragment{}, fmt.Errorf("%w: position %d, length %d", ErrOutOfRange, position, len(s.fragments))
	}
	return s.fragments[position], nil
}

// Len returns the number of stored fragments.
func (s *MetadataStore) Len() int {
	return len(s.fragments)
}

// Fragments returns a copy of all fragments in storage order.
func (s *MetadataStore) Fragments() []models.Fragment {
	return append([]models.Fragment(nil), s.fragments...)
}

// Truncate drops every fragment at position n and beyond.
func (s *MetadataStore) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(s.fragments) {
		s.fragments = s.fragments[:n]
	}
}

// Clear discards all fragments.
func (s *MetadataStore) Clear() {
	s.fragments = nil
}

// Summarize returns the number of fragments per source.
func (s *MetadataStore) Summarize() map[string]int {
	counts := make(map[string]int)
	for _, f := range s.fragments {
		counts[f.Source]++
	}
	return counts
}

// MarshalJSON encodes the store as a JSON array of fragment records.
func (s *MetadataStore) MarshalJSON() ([]byte, error) {
	if s.fragments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.fragments)
}

// UnmarshalJSON replaces the contents with a decoded array. Unknown fields and
// invalid records are rejected; on error the store is unchanged.
func (s *MetadataStore) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var fragments []models.Fragment
	if err := dec.Decode(&fragments); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after array", ErrCorruptMetadata)
	}
	for i := range fragments {
		if err := fragments[i].Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrCorruptMetadata, i, err)
		}
	}
	s.fragments = fragments
	return nil
}

// Save writes the store to path as JSON, replacing any previous file atomically.
func (s *MetadataStore) Save(path string) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// Load reads the store from path. A missing file reports found=false with no error.
func (s *MetadataStore) Load(path string) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read metadata: %w", err)
	}
	if err := s.UnmarshalJSON(data); err != nil {
		return true, err
	}
	return true, nil
}
