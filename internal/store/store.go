// Package store persists interview sessions keyed by user identity.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/orientador/internal/domain"
)

// Repository defines the interface for persisting conversation snapshots.
type Repository interface {
	// SaveSession creates or replaces the snapshot stored under s.UserID.
	SaveSession(ctx context.Context, s *domain.Session) error

	// LoadSession returns the snapshot for userID, or nil, nil when none exists.
	LoadSession(ctx context.Context, userID string) (*domain.Session, error)

	// DeleteSession removes the snapshot for userID. Deleting a missing key is not an error.
	DeleteSession(ctx context.Context, userID string) error

	// ListSessions returns summaries of every stored session, most recently updated first.
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)

	// CleanupExpiredSessions removes snapshots not updated within ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

// New opens the repository for the configured driver.
func New(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Driver {
	case "", "sqlite":
		s, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
