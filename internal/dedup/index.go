// Package dedup maintains the lookup structure that prevents duplicate page
// rows: one mapping from normalized URL to page, one from content hash to
// page. Writes are idempotent upserts, which also makes redelivered fetch
// results safe under at-least-once dispatch.
package dedup

import (
	"context"
	"fmt"

	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/frontier"
)

// PageStore is the page persistence the index drives.
type PageStore interface {
	Upsert(ctx context.Context, page *domain.Page) error
	GetByURL(ctx context.Context, url string) (*domain.Page, error)
	GetByContentHash(ctx context.Context, hash string) (*domain.Page, error)
	TouchCrawled(ctx context.Context, id string) error
}

// Index resolves URLs and content hashes to existing page rows.
type Index struct {
	pages PageStore
}

// NewIndex creates a dedup index over the given page store.
func NewIndex(pages PageStore) *Index {
	return &Index{pages: pages}
}

// Resolve looks up the page row for a URL, normalizing it the same way the
// frontier does so both sides agree on identity. Returns (nil, nil) when the
// URL has never been crawled.
func (i *Index) Resolve(ctx context.Context, rawURL string) (*domain.Page, error) {
	normalized, err := frontier.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dedup resolve: %w", err)
	}

	page, getErr := i.pages.GetByURL(ctx, normalized)
	if getErr != nil {
		return nil, fmt.Errorf("dedup resolve: %w", getErr)
	}

	return page, nil
}

// ResolveByContentHash looks up the most recent page row with the given
// content hash. A hit on re-fetch means the content is byte-identical and
// link re-extraction can be skipped.
func (i *Index) ResolveByContentHash(ctx context.Context, hash string) (*domain.Page, error) {
	if hash == "" {
		return nil, nil
	}

	page, err := i.pages.GetByContentHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("dedup resolve by hash: %w", err)
	}

	return page, nil
}

// RecordPage upserts the page keyed by its URL. If the URL already has a
// row, that row is updated in place, preserving its identity; feeding the
// same fetch result twice therefore yields exactly one row.
func (i *Index) RecordPage(ctx context.Context, page *domain.Page) error {
	normalized, err := frontier.NormalizeURL(page.URL)
	if err != nil {
		return fmt.Errorf("dedup record: %w", err)
	}
	page.URL = normalized

	if upsertErr := i.pages.Upsert(ctx, page); upsertErr != nil {
		return fmt.Errorf("dedup record: %w", upsertErr)
	}

	return nil
}

// TouchCrawled refreshes crawled_at on an existing page row, used when a
// re-fetch produced unchanged content.
func (i *Index) TouchCrawled(ctx context.Context, pageID string) error {
	if err := i.pages.TouchCrawled(ctx, pageID); err != nil {
		return fmt.Errorf("dedup touch: %w", err)
	}

	return nil
}

// IsCrawled reports whether a URL already has a page row that represents a
// successful crawl. Pages recorded only as errors do not block re-queueing.
func (i *Index) IsCrawled(ctx context.Context, url string) (bool, error) {
	page, err := i.pages.GetByURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("dedup is-crawled: %w", err)
	}

	return page != nil && page.ContentHash != nil, nil
}
