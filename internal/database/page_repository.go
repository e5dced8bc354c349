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

// ErrPageNotFound is returned when no page row matches a lookup.
var ErrPageNotFound = errors.New("page not found")

// pageSelectColumns lists columns for SELECT queries on pages.
const pageSelectColumns = `id, crawl_session_id, url, title, description, content_hash,
	status_code, content_type, content_length, language, crawled_at, last_modified,
	error_message`

// PageRepository handles database operations for pages.
type PageRepository struct {
	db *sqlx.DB
}

// NewPageRepository creates a new page repository.
func NewPageRepository(db *sqlx.DB) *PageRepository {
	return &PageRepository{db: db}
}

// Upsert inserts a page row or, when the URL already has one, updates the
// existing row in place. The row's identity (id) is preserved on conflict;
// mutable fields are overwritten and crawled_at is refreshed. The page's ID
// field is populated from the resulting row.
func (r *PageRepository) Upsert(ctx context.Context, page *domain.Page) error {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}

	query := `
		INSERT INTO pages (id, crawl_session_id, url, title, description, content_hash,
			status_code, content_type, content_length, language, crawled_at, last_modified,
			error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11, $12)
		ON CONFLICT (url) DO UPDATE SET
			crawl_session_id = EXCLUDED.crawl_session_id,
			title            = EXCLUDED.title,
			description      = EXCLUDED.description,
			content_hash     = EXCLUDED.content_hash,
			status_code      = EXCLUDED.status_code,
			content_type     = EXCLUDED.content_type,
			content_length   = EXCLUDED.content_length,
			language         = EXCLUDED.language,
			crawled_at       = NOW(),
			last_modified    = EXCLUDED.last_modified,
			error_message    = EXCLUDED.error_message
		RETURNING id, crawled_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		page.ID, page.CrawlSessionID, page.URL, page.Title, page.Description,
		page.ContentHash, page.StatusCode, page.ContentType, page.ContentLength,
		page.Language, page.LastModified, page.ErrorMessage,
	).Scan(&page.ID, &page.CrawledAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}

	return nil
}

// GetByURL retrieves the page row for an exact (already normalized) URL.
// A miss is not an error: returns (nil, nil) when no row exists.
func (r *PageRepository) GetByURL(ctx context.Context, url string) (*domain.Page, error) {
	query := `SELECT ` + pageSelectColumns + ` FROM pages WHERE url = $1`

	var page domain.Page
	err := r.db.GetContext(ctx, &page, query, url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page by url: %w", err)
	}

	return &page, nil
}

// GetByContentHash retrieves the most recently crawled page with the given
// content hash. Used to detect byte-identical re-fetches. A miss returns
// (nil, nil).
func (r *PageRepository) GetByContentHash(ctx context.Context, hash string) (*domain.Page, error) {
	query := `
		SELECT ` + pageSelectColumns + `
		FROM pages
		WHERE content_hash = $1
		ORDER BY crawled_at DESC
		LIMIT 1
	`

	var page domain.Page
	err := r.db.GetContext(ctx, &page, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page by content hash: %w", err)
	}

	return &page, nil
}

// TouchCrawled refreshes crawled_at without touching any other field. Used
// when a re-fetch produced byte-identical content and extraction is skipped.
func (r *PageRepository) TouchCrawled(ctx context.Context, id string) error {
	query := `UPDATE pages SET crawled_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, ErrPageNotFound)
}

// CountBySession returns the number of page rows owned by a session.
func (r *PageRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM pages WHERE crawl_session_id = $1`

	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}

	return count, nil
}
