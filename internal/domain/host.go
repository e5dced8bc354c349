package domain

import "time"

// DefaultCrawlDelaySeconds is the politeness delay applied to hosts whose
// robots.txt does not specify a crawl-delay.
const DefaultCrawlDelaySeconds = 1.0

// Domain holds the per-host politeness record: cached robots.txt text, the
// effective crawl delay, and an allow/deny switch. Rows are created lazily on
// first encounter of a host and are never deleted by the crawl engine.
// There is no foreign key from queue or link rows to this table; the engine
// resolves a Domain by parsing the host out of the URL.
type Domain struct {
	ID              string     `db:"id"                json:"id"`
	Domain          string     `db:"domain"            json:"domain"`
	RobotsTxt       *string    `db:"robots_txt"        json:"robots_txt,omitempty"`
	CrawlDelay      float64    `db:"crawl_delay"       json:"crawl_delay"`
	AllowCrawl      bool       `db:"allow_crawl"       json:"allow_crawl"`
	LastRobotsCheck *time.Time `db:"last_robots_check" json:"last_robots_check,omitempty"`
}
