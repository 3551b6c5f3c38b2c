package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc applies _pragma parameters on every new connection.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		has_name INTEGER NOT NULL DEFAULT 0,
		terminated INTEGER NOT NULL DEFAULT 0,
		interests TEXT NOT NULL DEFAULT '',
		answer_index INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		questions_json TEXT NOT NULL DEFAULT '[]',
		answers_json TEXT NOT NULL DEFAULT '[]',
		history_json TEXT NOT NULL DEFAULT '[]',
		recommendation TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.ensureOwnerColumn()
}

// ensureOwnerColumn upgrades databases created before snapshots carried an owner.
func (s *SQLiteStore) ensureOwnerColumn() error {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('conversations') WHERE name = 'owner'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE conversations ADD COLUMN owner TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add owner column: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// SaveSession creates or replaces the snapshot for the session's user.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	r, err := encodeSession(sess)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (
			user_id, owner, state, has_name, terminated, interests, answer_index, retry_count,
			questions_json, answers_json, history_json, recommendation, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			owner = excluded.owner,
			state = excluded.state,
			has_name = excluded.has_name,
			terminated = excluded.terminated,
			interests = excluded.interests,
			answer_index = excluded.answer_index,
			retry_count = excluded.retry_count,
			questions_json = excluded.questions_json,
			answers_json = excluded.answers_json,
			history_json = excluded.history_json,
			recommendation = excluded.recommendation,
			updated_at = excluded.updated_at`

	err = shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "save_session", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx, query,
			r.UserID, r.Owner, r.State, r.HasName, r.Terminated, r.Interests, r.AnswerIndex, r.RetryCount,
			string(r.QuestionsJSON), string(r.AnswersJSON), string(r.HistoryJSON), r.Recommendation,
			r.CreatedAt, r.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.UserID, err)
	}
	return nil
}

// LoadSession retrieves the snapshot for userID.
func (s *SQLiteStore) LoadSession(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT user_id, owner, state, has_name, terminated, interests, answer_index, retry_count,
		       questions_json, answers_json, history_json, recommendation, created_at, updated_at
		FROM conversations WHERE user_id = ?`

	var r row
	var questions, answers, history string
	var found bool
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "load_session", func() error {
		err := s.db.QueryRowContext(ctx, query, userID).Scan(
			&r.UserID, &r.Owner, &r.State, &r.HasName, &r.Terminated, &r.Interests, &r.AnswerIndex, &r.RetryCount,
			&questions, &answers, &history, &r.Recommendation, &r.CreatedAt, &r.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if !found {
		return nil, nil
	}
	r.QuestionsJSON = []byte(questions)
	r.AnswersJSON = []byte(answers)
	r.HistoryJSON = []byte(history)

	return decodeSession(r)
}

// DeleteSession removes the snapshot for userID.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "delete_session", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// ListSessions returns summaries of every stored conversation.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var out []domain.SessionSummary
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "list_sessions", func() error {
		var err error
		out, err = s.listSessions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) listSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	query := `
		SELECT user_id, state, terminated, answer_index, questions_json, updated_at
		FROM conversations ORDER BY updated_at DESC, user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	var out []domain.SessionSummary
	for rows.Next() {
		var r row
		var questions string
		if err := rows.Scan(&r.UserID, &r.State, &r.Terminated, &r.AnswerIndex, &questions, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		r.QuestionsJSON = []byte(questions)
		out = append(out, summaryFromRow(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// CleanupExpiredSessions removes conversations older than TTL.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var affected int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "cleanup_sessions", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return affected, nil
}
