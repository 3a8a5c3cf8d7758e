package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"playcue/internal/action"
)

var (
	ErrClosed = errors.New("storage closed")
	ErrExists = errors.New("action already exists")
)

// Config configures storage. An empty Driver means "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the scheduler and the host process.
type Store interface {
	Create(ctx context.Context, rec action.Record) (action.Record, error)
	Get(ctx context.Context, id string) (action.Record, error)
	List(ctx context.Context) ([]action.Record, error)
	ListActive(ctx context.Context) ([]action.Record, error)
	Patch(ctx context.Context, id string, p action.Patch) (action.Record, error)
	Delete(ctx context.Context, id string) error

	LoadRecoveryState(ctx context.Context) (action.RecoveryState, error)
	SaveRecoveryState(ctx context.Context, st action.RecoveryState) error

	Close() error
}

// prepareCreate fills store-owned fields of a new record.
func prepareCreate(rec action.Record, now time.Time) (action.Record, error) {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !rec.Type.Valid() {
		return action.Record{}, action.ErrInvalidType
	}
	if rec.MaxRetries <= 0 {
		rec.MaxRetries = action.DefaultMaxRetries
	}
	if rec.RetryCount < 0 {
		rec.RetryCount = 0
	}
	now = now.UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}
