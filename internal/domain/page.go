package domain

import "time"

// Page represents a fetched (or failed) URL. The url column is globally
// unique across all sessions: a re-crawl updates the existing row in place
// rather than inserting a duplicate.
type Page struct {
	ID             string     `db:"id"               json:"id"`
	CrawlSessionID string     `db:"crawl_session_id" json:"crawl_session_id"`
	URL            string     `db:"url"              json:"url"`
	Title          *string    `db:"title"            json:"title,omitempty"`
	Description    *string    `db:"description"      json:"description,omitempty"`
	ContentHash    *string    `db:"content_hash"     json:"content_hash,omitempty"`
	StatusCode     *int       `db:"status_code"      json:"status_code,omitempty"`
	ContentType    *string    `db:"content_type"     json:"content_type,omitempty"`
	ContentLength  *int64     `db:"content_length"   json:"content_length,omitempty"`
	Language       *string    `db:"language"         json:"language,omitempty"`
	CrawledAt      time.Time  `db:"crawled_at"       json:"crawled_at"`
	LastModified   *time.Time `db:"last_modified"    json:"last_modified,omitempty"`
	ErrorMessage   *string    `db:"error_message"    json:"error_message,omitempty"`
}
