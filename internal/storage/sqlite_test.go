package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/benkyo/internal/models"
)

func TestSQLiteHistory_RecordList(t *testing.T) {
	store, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := &models.Interaction{
		ID: "i1", SessionID: "s1", Query: "what is a", Answer: "a is a letter",
		Sources:   []models.Fragment{{Text: "a", Source: "abc.pdf", Page: 1, LocalIndex: 0}},
		CreatedAt: base,
	}
	second := &models.Interaction{ID: "i2", SessionID: "s1", Query: "b?", Answer: "b", CreatedAt: base.Add(time.Minute)}
	other := &models.Interaction{ID: "i3", SessionID: "s2", Query: "c?", Answer: "c"}
	for _, it := range []*models.Interaction{first, second, other} {
		if err := store.Record(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	if other.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	list, err := store.List(ctx, "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(list))
	}
	if list[0].ID != "i2" || list[1].ID != "i1" {
		t.Errorf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
	if len(list[1].Sources) != 1 || list[1].Sources[0].Source != "abc.pdf" {
		t.Errorf("sources not restored: %+v", list[1].Sources)
	}
	if list[0].Sources == nil || len(list[0].Sources) != 0 {
		t.Errorf("empty sources should decode to an empty slice, got %v", list[0].Sources)
	}

	limited, _ := store.List(ctx, "s1", 1)
	if len(limited) != 1 {
		t.Errorf("limit 1: got %d", len(limited))
	}
}

func TestSQLiteHistory_DeleteAndClear(t *testing.T) {
	store, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	_ = store.Record(ctx, &models.Interaction{ID: "a", SessionID: "s", Query: "q", Answer: "x"})
	_ = store.Record(ctx, &models.Interaction{ID: "b", SessionID: "s", Query: "q", Answer: "y"})

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	n, err := store.Count(ctx, "s")
	if err != nil || n != 1 {
		t.Errorf("Count: %v, %d", err, n)
	}
	if err := store.ClearSession(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	n, _ = store.Count(ctx, "s")
	if n != 0 {
		t.Errorf("expected 0 after clear, got %d", n)
	}
}
