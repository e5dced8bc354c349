package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quarryhq/quarry/internal/domain"
)

// ErrDomainNotFound is returned when no politeness record exists for a host.
var ErrDomainNotFound = errors.New("domain not found")

// domainSelectColumns lists columns for SELECT queries on domains.
const domainSelectColumns = `id, domain, robots_txt, crawl_delay, allow_crawl, last_robots_check`

// DomainRepository handles database operations for per-host politeness records.
type DomainRepository struct {
	db *sqlx.DB
}

// NewDomainRepository creates a new domain repository.
func NewDomainRepository(db *sqlx.DB) *DomainRepository {
	return &DomainRepository{db: db}
}

// GetOrCreate returns the politeness record for a host, creating a default
// row (crawl allowed, 1.0s delay, no robots.txt cached) if none exists.
// Uses INSERT ... ON CONFLICT DO NOTHING then SELECT so concurrent callers
// converge on the same row.
func (r *DomainRepository) GetOrCreate(ctx context.Context, host string) (*domain.Domain, error) {
	insertQuery := `INSERT INTO domains (id, domain) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insertQuery, uuid.NewString(), host); err != nil {
		return nil, fmt.Errorf("failed to insert domain: %w", err)
	}

	selectQuery := `SELECT ` + domainSelectColumns + ` FROM domains WHERE domain = $1`

	var d domain.Domain
	if selectErr := r.db.GetContext(ctx, &d, selectQuery, host); selectErr != nil {
		return nil, fmt.Errorf("failed to select domain: %w", selectErr)
	}

	return &d, nil
}

// UpdateRobots caches the fetched robots.txt text for a host along with the
// effective crawl delay and allow flag, stamping last_robots_check.
// robotsTxt may be nil when the fetch failed and the engine is recording a
// fail-open refresh.
func (r *DomainRepository) UpdateRobots(
	ctx context.Context,
	host string,
	robotsTxt *string,
	crawlDelay float64,
	allowCrawl bool,
) error {
	query := `
		UPDATE domains
		SET robots_txt = $2, crawl_delay = $3, allow_crawl = $4, last_robots_check = NOW()
		WHERE domain = $1
	`

	result, err := r.db.ExecContext(ctx, query, host, robotsTxt, crawlDelay, allowCrawl)
	return execRequireRows(result, err, ErrDomainNotFound)
}

// SetAllowCrawl flips the manual allow/deny switch for a host.
func (r *DomainRepository) SetAllowCrawl(ctx context.Context, host string, allow bool) error {
	query := `UPDATE domains SET allow_crawl = $2 WHERE domain = $1`

	result, err := r.db.ExecContext(ctx, query, host, allow)
	return execRequireRows(result, err, ErrDomainNotFound)
}
