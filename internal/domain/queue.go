package domain

import "time"

// QueueEntry status constants. completed and failed are terminal.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// Priority bounds. Higher priority entries are dispatched sooner.
const (
	QueueMinPriority     = 0
	QueueMaxPriority     = 10
	QueueDefaultPriority = 5
)

// QueueEntry is one URL awaiting fetch for a session. (crawl_session_id, url)
// is unique, so a URL can be queued at most once per session; re-discovery of
// an already-queued URL is a no-op. Terminal rows are retained for audit.
type QueueEntry struct {
	ID             string    `db:"id"               json:"id"`
	CrawlSessionID string    `db:"crawl_session_id" json:"crawl_session_id"`
	URL            string    `db:"url"              json:"url"`
	Priority       int       `db:"priority"         json:"priority"`
	RetryCount     int       `db:"retry_count"      json:"retry_count"`
	Status         string    `db:"status"           json:"status"`
	QueuedAt       time.Time `db:"queued_at"        json:"queued_at"`
}

// IsTerminal reports whether no further status transition can occur.
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == QueueStatusCompleted || e.Status == QueueStatusFailed
}
