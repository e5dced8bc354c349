package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements holds the DDL for the five crawl relations. Statements are
// idempotent so EnsureSchema can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS crawl_sessions (
		id                 UUID PRIMARY KEY,
		start_url          TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'running',
		pages_crawled      INTEGER NOT NULL DEFAULT 0,
		errors_encountered INTEGER NOT NULL DEFAULT 0,
		started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at       TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS pages (
		id               UUID PRIMARY KEY,
		crawl_session_id UUID NOT NULL REFERENCES crawl_sessions(id) ON DELETE CASCADE,
		url              TEXT NOT NULL UNIQUE,
		title            TEXT,
		description      TEXT,
		content_hash     TEXT,
		status_code      INTEGER,
		content_type     TEXT,
		content_length   BIGINT,
		language         TEXT,
		crawled_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_modified    TIMESTAMPTZ,
		error_message    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_crawl_session_id ON pages (crawl_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages (content_hash)`,

	`CREATE TABLE IF NOT EXISTS links (
		id             UUID PRIMARY KEY,
		source_page_id UUID NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		target_url     TEXT NOT NULL,
		link_text      TEXT,
		link_type      TEXT NOT NULL,
		discovered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_links_source_page_id ON links (source_page_id)`,

	`CREATE TABLE IF NOT EXISTS domains (
		id                UUID PRIMARY KEY,
		domain            TEXT NOT NULL UNIQUE,
		robots_txt        TEXT,
		crawl_delay       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		allow_crawl       BOOLEAN NOT NULL DEFAULT TRUE,
		last_robots_check TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS url_queue (
		id               UUID PRIMARY KEY,
		crawl_session_id UUID NOT NULL REFERENCES crawl_sessions(id) ON DELETE CASCADE,
		url              TEXT NOT NULL,
		priority         INTEGER NOT NULL DEFAULT 5,
		retry_count      INTEGER NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'pending',
		queued_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (crawl_session_id, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_url_queue_crawl_session_id ON url_queue (crawl_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_url_queue_status ON url_queue (status)`,
}

// EnsureSchema creates the crawl tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
