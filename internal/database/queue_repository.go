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

// ErrQueueEntryNotFound is returned when no queue row matches a lookup.
var ErrQueueEntryNotFound = errors.New("queue entry not found")

// queueSelectColumns lists columns for SELECT queries on url_queue.
const queueSelectColumns = `id, crawl_session_id, url, priority, retry_count, status, queued_at`

// QueueRepository handles database operations for the URL work queue.
// All status transitions are single atomic statements or transactions so
// multiple scheduler processes can safely share the store.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a pending entry for (session, url). The unique constraint
// on (crawl_session_id, url) makes re-discovery a no-op: the method reports
// inserted=false and no error for duplicates.
func (r *QueueRepository) Enqueue(ctx context.Context, sessionID, url string, priority int) (bool, error) {
	query := `
		INSERT INTO url_queue (id, crawl_session_id, url, priority, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (crawl_session_id, url) DO NOTHING
	`

	result, err := r.db.ExecContext(
		ctx, query,
		uuid.NewString(), sessionID, url, priority, domain.QueueStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue URL: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, fmt.Errorf("failed to read enqueue result: %w", affectedErr)
	}

	return n > 0, nil
}

// SelectDispatchable returns up to limit pending entries for the session in
// dispatch order: priority descending, then queued_at ascending (FIFO within
// a priority band), then id for a deterministic total order.
func (r *QueueRepository) SelectDispatchable(
	ctx context.Context,
	sessionID string,
	limit int,
) ([]*domain.QueueEntry, error) {
	query := `
		SELECT ` + queueSelectColumns + `
		FROM url_queue
		WHERE crawl_session_id = $1 AND status = $2
		ORDER BY priority DESC, queued_at ASC, id ASC
		LIMIT $3
	`

	var entries []*domain.QueueEntry
	err := r.db.SelectContext(ctx, &entries, query, sessionID, domain.QueueStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dispatchable entries: %w", err)
	}

	if entries == nil {
		entries = []*domain.QueueEntry{}
	}

	return entries, nil
}

// Claim transitions a pending entry to processing. The status guard in the
// WHERE clause is the mutual-exclusion point: of two workers racing on the
// same entry, exactly one sees a row affected.
func (r *QueueRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `UPDATE url_queue SET status = $2 WHERE id = $1 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, domain.QueueStatusProcessing, domain.QueueStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, fmt.Errorf("failed to read claim result: %w", affectedErr)
	}

	return n > 0, nil
}

// MarkCompleted transitions a processing entry to completed and increments
// the owning session's pages_crawled counter in the same transaction.
func (r *QueueRepository) MarkCompleted(ctx context.Context, id, sessionID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		entryQuery := `UPDATE url_queue SET status = $2 WHERE id = $1 AND status = $3`

		result, err := tx.ExecContext(ctx, entryQuery, id, domain.QueueStatusCompleted, domain.QueueStatusProcessing)
		if requireErr := execRequireRows(result, err, ErrQueueEntryNotFound); requireErr != nil {
			return requireErr
		}

		counterQuery := `UPDATE crawl_sessions SET pages_crawled = pages_crawled + 1 WHERE id = $1`

		counterResult, counterErr := tx.ExecContext(ctx, counterQuery, sessionID)
		return execRequireRows(counterResult, counterErr, ErrSessionNotFound)
	})
}

// Retry returns a processing entry to pending with an incremented retry
// count and a demoted priority, so fresher URLs are preferred over
// previously failed ones.
func (r *QueueRepository) Retry(ctx context.Context, id string, demotedPriority int) error {
	query := `
		UPDATE url_queue
		SET status = $2, retry_count = retry_count + 1, priority = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.db.ExecContext(
		ctx, query,
		id, domain.QueueStatusPending, demotedPriority, domain.QueueStatusProcessing,
	)
	return execRequireRows(result, err, ErrQueueEntryNotFound)
}

// MarkFailed transitions a processing entry to terminal failed. When
// countError is true, errors_encountered is incremented in the same
// transaction; policy denials are recorded without counting as crawl errors.
func (r *QueueRepository) MarkFailed(ctx context.Context, id, sessionID string, countError bool) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		entryQuery := `UPDATE url_queue SET status = $2 WHERE id = $1 AND status = $3`

		result, err := tx.ExecContext(ctx, entryQuery, id, domain.QueueStatusFailed, domain.QueueStatusProcessing)
		if requireErr := execRequireRows(result, err, ErrQueueEntryNotFound); requireErr != nil {
			return requireErr
		}

		if !countError {
			return nil
		}

		counterQuery := `UPDATE crawl_sessions SET errors_encountered = errors_encountered + 1 WHERE id = $1`

		counterResult, counterErr := tx.ExecContext(ctx, counterQuery, sessionID)
		return execRequireRows(counterResult, counterErr, ErrSessionNotFound)
	})
}

// CountActive returns the number of non-terminal (pending or processing)
// entries for a session. A session may complete only when this reaches zero.
func (r *QueueRepository) CountActive(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM url_queue
		WHERE crawl_session_id = $1 AND status IN ($2, $3)
	`

	err := r.db.GetContext(ctx, &count, query, sessionID, domain.QueueStatusPending, domain.QueueStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to count active entries: %w", err)
	}

	return count, nil
}

// ResetProcessing returns entries stuck in processing to pending. Applied on
// startup so entries orphaned by a crash are dispatched again (at-least-once
// delivery; downstream writes are idempotent).
func (r *QueueRepository) ResetProcessing(ctx context.Context, sessionID string) (int64, error) {
	query := `
		UPDATE url_queue
		SET status = $2
		WHERE crawl_session_id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, sessionID, domain.QueueStatusPending, domain.QueueStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing entries: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", affectedErr)
	}

	return n, nil
}

// GetByID retrieves a queue entry by its ID.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	query := `SELECT ` + queueSelectColumns + ` FROM url_queue WHERE id = $1`

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return &entry, nil
}
