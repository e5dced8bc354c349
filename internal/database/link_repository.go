package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quarryhq/quarry/internal/domain"
)

// LinkRepository handles database operations for discovered links.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// InsertBatch records the discovery edges extracted from one source page.
// Links are immutable after insert; multiplicity is intentional, so no
// conflict handling is applied.
func (r *LinkRepository) InsertBatch(ctx context.Context, links []*domain.Link) error {
	if len(links) == 0 {
		return nil
	}

	query := `
		INSERT INTO links (id, source_page_id, target_url, link_text, link_type)
		VALUES (:id, :source_page_id, :target_url, :link_text, :link_type)
	`

	for _, link := range links {
		if link.ID == "" {
			link.ID = uuid.NewString()
		}
	}

	if _, err := r.db.NamedExecContext(ctx, query, links); err != nil {
		return fmt.Errorf("failed to insert links: %w", err)
	}

	return nil
}

// ListBySourcePage returns all links discovered on the given page, oldest first.
func (r *LinkRepository) ListBySourcePage(ctx context.Context, pageID string) ([]*domain.Link, error) {
	query := `
		SELECT id, source_page_id, target_url, link_text, link_type, discovered_at
		FROM links
		WHERE source_page_id = $1
		ORDER BY discovered_at ASC
	`

	var links []*domain.Link
	if err := r.db.SelectContext(ctx, &links, query, pageID); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	if links == nil {
		links = []*domain.Link{}
	}

	return links, nil
}
