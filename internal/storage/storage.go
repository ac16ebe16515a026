// Package storage provides fragment metadata persistence and the conversation history store.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/benkyo/internal/models"
)

var (
	// ErrOutOfRange is returned when a metadata position is beyond the stored fragments.
	ErrOutOfRange = errors.New("metadata position out of range")
	// ErrCorruptMetadata is returned when a persisted metadata file cannot be decoded.
	ErrCorruptMetadata = errors.New("corrupt metadata")
	// ErrNotFound is returned when a history entry does not exist.
	ErrNotFound = errors.New("not found")
)

// History records question/answer interactions per session.
type History interface {
	Record(ctx context.Context, it *models.Interaction) error
	// List returns up to limit interactions of the session, newest first. limit <= 0 means all.
	List(ctx context.Context, sessionID string, limit int) ([]*models.Interaction, error)
	Delete(ctx context.Context, id string) error
	ClearSession(ctx context.Context, sessionID string) error
	Count(ctx context.Context, sessionID string) (int64, error)
	// Path is the database file, or "" for stores that are not file backed.
	Path() string
	Close() error
}
