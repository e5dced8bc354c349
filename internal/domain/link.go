package domain

import "time"

// Link type constants. Internal links share the source page's host.
const (
	LinkTypeInternal = "internal"
	LinkTypeExternal = "external"
)

// Link is one discovery edge from a fetched page to a target URL. Many links
// may point at the same target; each discovery is recorded separately and the
// row is immutable after insert.
type Link struct {
	ID           string    `db:"id"             json:"id"`
	SourcePageID string    `db:"source_page_id" json:"source_page_id"`
	TargetURL    string    `db:"target_url"     json:"target_url"`
	LinkText     *string   `db:"link_text"      json:"link_text,omitempty"`
	LinkType     string    `db:"link_type"      json:"link_type"`
	DiscoveredAt time.Time `db:"discovered_at"  json:"discovered_at"`
}
