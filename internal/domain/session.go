// Package domain provides the persisted row types shared across the crawl engine.
package domain

import "time"

// CrawlSession status constants.
const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// CrawlSession represents one crawl launched from a start URL. Counters are
// monotonically non-decreasing and are only mutated alongside the queue or
// page row that produced them.
type CrawlSession struct {
	ID                string     `db:"id"                 json:"id"`
	StartURL          string     `db:"start_url"          json:"start_url"`
	Status            string     `db:"status"             json:"status"`
	PagesCrawled      int        `db:"pages_crawled"      json:"pages_crawled"`
	ErrorsEncountered int        `db:"errors_encountered" json:"errors_encountered"`
	StartedAt         time.Time  `db:"started_at"         json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at"       json:"completed_at,omitempty"`
}

// IsTerminal reports whether the session has reached a final status.
// completed_at is set iff the session is terminal.
func (s *CrawlSession) IsTerminal() bool {
	return s.Status != SessionStatusRunning
}
