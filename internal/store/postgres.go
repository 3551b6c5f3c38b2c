package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashureev/orientador/internal/domain"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore implements Repository on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL, applies embedded migrations and returns the store.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres store requires a database URL")
	}

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := RunMigrations(databaseURL, migrationsFS); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPool opens a pgx connection pool and verifies it.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies every pending migration found in migrationsFS.
func RunMigrations(databaseURL string, migrationsFS fs.FS) error {
	d, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveSession creates or replaces the snapshot for the session's user.
func (s *PostgresStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	r, err := encodeSession(sess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (
			user_id, owner, state, has_name, terminated, interests, answer_index, retry_count,
			questions, answers, history, recommendation, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			state = EXCLUDED.state,
			has_name = EXCLUDED.has_name,
			terminated = EXCLUDED.terminated,
			interests = EXCLUDED.interests,
			answer_index = EXCLUDED.answer_index,
			retry_count = EXCLUDED.retry_count,
			questions = EXCLUDED.questions,
			answers = EXCLUDED.answers,
			history = EXCLUDED.history,
			recommendation = EXCLUDED.recommendation,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		r.UserID, r.Owner, r.State, r.HasName, r.Terminated, r.Interests, r.AnswerIndex, r.RetryCount,
		r.QuestionsJSON, r.AnswersJSON, r.HistoryJSON, r.Recommendation, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.UserID, err)
	}
	return nil
}

// LoadSession retrieves the snapshot for userID.
func (s *PostgresStore) LoadSession(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT user_id, owner, state, has_name, terminated, interests, answer_index, retry_count,
		       questions, answers, history, recommendation, created_at, updated_at
		FROM conversations WHERE user_id = $1`

	var r row
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&r.UserID, &r.Owner, &r.State, &r.HasName, &r.Terminated, &r.Interests, &r.AnswerIndex, &r.RetryCount,
		&r.QuestionsJSON, &r.AnswersJSON, &r.HistoryJSON, &r.Recommendation, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return decodeSession(r)
}

// DeleteSession removes the snapshot for userID.
func (s *PostgresStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// ListSessions returns summaries of every stored conversation.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, state, terminated, answer_index, questions, updated_at
		FROM conversations ORDER BY updated_at DESC, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.UserID, &r.State, &r.Terminated, &r.AnswerIndex, &r.QuestionsJSON, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		out = append(out, summaryFromRow(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// CleanupExpiredSessions removes conversations older than TTL.
func (s *PostgresStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE updated_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
