package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quarryhq/quarry/internal/domain"
)

// ErrSessionNotFound is returned when a crawl session does not exist.
var ErrSessionNotFound = errors.New("crawl session not found")

// sessionSelectColumns lists columns for SELECT queries on crawl_sessions.
const sessionSelectColumns = `id, start_url, status, pages_crawled, errors_encountered,
	started_at, completed_at`

// SessionRepository handles database operations for crawl sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new running session for the given start URL.
func (r *SessionRepository) Create(ctx context.Context, startURL string) (*domain.CrawlSession, error) {
	query := `
		INSERT INTO crawl_sessions (id, start_url, status)
		VALUES ($1, $2, $3)
		RETURNING ` + sessionSelectColumns + `
	`

	var session domain.CrawlSession
	err := r.db.GetContext(ctx, &session, query, uuid.NewString(), startURL, domain.SessionStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to create crawl session: %w", err)
	}

	return &session, nil
}

// GetByID retrieves a crawl session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.CrawlSession, error) {
	query := `SELECT ` + sessionSelectColumns + ` FROM crawl_sessions WHERE id = $1`

	var session domain.CrawlSession
	err := r.db.GetContext(ctx, &session, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get crawl session: %w", err)
	}

	return &session, nil
}

// List retrieves sessions ordered by start time, newest first.
func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]*domain.CrawlSession, error) {
	query := `
		SELECT ` + sessionSelectColumns + `
		FROM crawl_sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	var sessions []*domain.CrawlSession
	if err := r.db.SelectContext(ctx, &sessions, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list crawl sessions: %w", err)
	}

	if sessions == nil {
		sessions = []*domain.CrawlSession{}
	}

	return sessions, nil
}

// Finalize transitions a running session to a terminal status and stamps
// completed_at. The status/completed_at invariant is enforced here: only
// terminal statuses are accepted.
func (r *SessionRepository) Finalize(ctx context.Context, id, status string) error {
	if status != domain.SessionStatusCompleted && status != domain.SessionStatusFailed {
		return fmt.Errorf("cannot finalize session to non-terminal status %q", status)
	}

	query := `
		UPDATE crawl_sessions
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, status, domain.SessionStatusRunning)
	return execRequireRows(result, err, ErrSessionNotFound)
}
