package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/benkyo/internal/models"
)

func sampleFragments() []models.Fragment {
	return []models.Fragment{
		{Text: "alpha", Source: "a.pdf", Page: 1, LocalIndex: 0},
		{Text: "beta", Source: "a.pdf", Page: 1, LocalIndex: 1},
		{Text: "gamma", Source: "b.pdf", Page: 3, LocalIndex: 0},
	}
}

func TestMetadataStore_AppendGet(t *testing.T) {
	s := NewMetadataStore()
	s.Append(sampleFragments())
	if s.Len() != 3 {
		t.Fatalf("Len=%d", s.Len())
	}
	f, err := s.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "gamma" {
		t.Errorf("got %+v", f)
	}
	if _, err := s.Get(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := s.Get(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for negative, got %v", err)
	}
}

func TestMetadataStore_Summarize(t *testing.T) {
	s := NewMetadataStore()
	s.Append(sampleFragments())
	got := s.Summarize()
	if len(got) != 2 || got["a.pdf"] != 2 || got["b.pdf"] != 1 {
		t.Errorf("Summarize = %v", got)
	}
	s.Clear()
	if len(s.Summarize()) != 0 || s.Len() != 0 {
		t.Error("clear should empty the store")
	}
}

func TestMetadataStore_Truncate(t *testing.T) {
	s := NewMetadataStore()
	s.Append(sampleFragments())
	s.Truncate(1)
	if s.Len() != 1 {
		t.Errorf("Len=%d", s.Len())
	}
}

func TestMetadataStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "metadata.json")
	s := NewMetadataStore()
	s.Append(sampleFragments())
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"local_index":1`) {
		t.Errorf("expected snake_case keys in %s", raw)
	}

	loaded := NewMetadataStore()
	found, err := loaded.Load(path)
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if loaded.Len() != 3 {
		t.Errorf("Len=%d", loaded.Len())
	}
	f, _ := loaded.Get(1)
	if f != sampleFragments()[1] {
		t.Errorf("got %+v", f)
	}
}

func TestMetadataStore_SaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := NewMetadataStore().Save(path); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "[]" {
		t.Errorf("empty store should be [], got %s", raw)
	}
}

func TestMetadataStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"object", `{"text":"x"}`},
		{"unknown field", `[{"text":"x","source":"a","page":1,"local_index":0,"extra":1}]`},
		{"missing source", `[{"text":"x","page":1,"local_index":0}]`},
		{"zero page", `[{"text":"x","source":"a","page":0,"local_index":0}]`},
		{"trailing", `[] []`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "metadata.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			s := NewMetadataStore()
			found, err := s.Load(path)
			if !found || !errors.Is(err, ErrCorruptMetadata) {
				t.Errorf("found=%v err=%v", found, err)
			}
			if s.Len() != 0 {
				t.Errorf("corrupt load must leave store empty")
			}
		})
	}
}

func TestMetadataStore_LoadMissing(t *testing.T) {
	found, err := NewMetadataStore().Load(filepath.Join(t.TempDir(), "none.json"))
	if found || err != nil {
		t.Errorf("found=%v err=%v", found, err)
	}
}
