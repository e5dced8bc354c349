// Package policy implements the per-domain politeness layer: cached
// robots.txt rules, crawl delays, and the per-host dispatch clock that
// serializes fetches to one host.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/quarryhq/quarry/internal/domain"
)

// DefaultRobotsTTL is how long a cached robots.txt stays fresh before it is
// re-fetched on next use.
const DefaultRobotsTTL = 24 * time.Hour

// DomainStore is the persistence surface for politeness records.
type DomainStore interface {
	GetOrCreate(ctx context.Context, host string) (*domain.Domain, error)
	UpdateRobots(ctx context.Context, host string, robotsTxt *string, crawlDelay float64, allowCrawl bool) error
}

// RobotsFetcher retrieves the raw robots.txt for a host.
type RobotsFetcher interface {
	FetchRobots(ctx context.Context, host string) (body []byte, statusCode int, err error)
}

// Logger is the logging surface the store needs.
type Logger interface {
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
}

// Policy is the evaluated politeness decision set for one host.
type Policy struct {
	Host       string
	AllowCrawl bool
	CrawlDelay time.Duration

	robots *robotstxt.RobotsData
}

// Allowed evaluates the robots rules for a path. Hosts with no usable
// robots.txt allow everything; a false AllowCrawl flag denies everything.
func (p *Policy) Allowed(path, userAgent string) bool {
	if !p.AllowCrawl {
		return false
	}

	if p.robots == nil {
		return true
	}

	return p.robots.TestAgent(path, userAgent)
}

// Config holds policy store settings.
type Config struct {
	UserAgent string
	RobotsTTL time.Duration
	// DefaultCrawlDelay applies to hosts whose robots.txt sets none.
	DefaultCrawlDelay time.Duration
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.RobotsTTL <= 0 {
		c.RobotsTTL = DefaultRobotsTTL
	}
	if c.DefaultCrawlDelay <= 0 {
		c.DefaultCrawlDelay = time.Duration(domain.DefaultCrawlDelaySeconds * float64(time.Second))
	}
	return c
}

// hostState is the in-memory side of a host's politeness bookkeeping.
type hostState struct {
	policy        *Policy
	policyExpires time.Time
	lastDispatch  time.Time
}

// Store resolves and caches per-host crawl policies. Robots rules and crawl
// delays are persisted; the last-dispatch clock lives in memory only, since
// a restart at worst dispatches one request early.
type Store struct {
	domains DomainStore
	fetcher RobotsFetcher
	log     Logger
	cfg     Config

	mu    sync.Mutex
	hosts map[string]*hostState

	now func() time.Time
}

// NewStore creates a policy store.
func NewStore(domains DomainStore, fetcher RobotsFetcher, log Logger, cfg Config) *Store {
	return &Store{
		domains: domains,
		fetcher: fetcher,
		log:     log,
		cfg:     cfg.WithDefaults(),
		hosts:   make(map[string]*hostState),
		now:     time.Now,
	}
}

// GetPolicy returns the politeness policy for a host, lazily creating the
// domain record and fetching robots.txt on first encounter or after the TTL
// expires. Robots fetch failures are fail-open: the host is treated as
// allowing everything, and the refresh is still stamped so the failure is
// not retried on every dispatch.
func (s *Store) GetPolicy(ctx context.Context, host string) (*Policy, error) {
	s.mu.Lock()
	state, ok := s.hosts[host]
	s.mu.Unlock()

	if ok && state.policy != nil && s.now().Before(state.policyExpires) {
		return state.policy, nil
	}

	record, err := s.domains.GetOrCreate(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	if s.robotsStale(record) {
		record, err = s.refreshRobots(ctx, record)
		if err != nil {
			return nil, err
		}
	}

	pol := s.buildPolicy(record)

	expires := s.now().Add(s.cfg.RobotsTTL)

	s.mu.Lock()
	if existing, exists := s.hosts[host]; exists {
		existing.policy = pol
		existing.policyExpires = expires
	} else {
		s.hosts[host] = &hostState{policy: pol, policyExpires: expires}
	}
	s.mu.Unlock()

	return pol, nil
}

// IsAllowed evaluates the robots rules for a request URI (path plus query)
// on the given host.
func (s *Store) IsAllowed(ctx context.Context, host, requestURI string) (bool, error) {
	pol, err := s.GetPolicy(ctx, host)
	if err != nil {
		return false, err
	}

	return pol.Allowed(requestURI, s.cfg.UserAgent), nil
}

// NextEligibleTime returns the earliest instant a fetch may be dispatched to
// the host: last dispatch plus the host's crawl delay. Hosts never seen by
// this process are eligible immediately.
func (s *Store) NextEligibleTime(host string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.hosts[host]
	if !ok || state.lastDispatch.IsZero() {
		return time.Time{}
	}

	return state.lastDispatch.Add(s.delayLocked(state))
}

// ReserveDispatch atomically claims the host's next dispatch slot. The
// eligibility check and the clock advance happen under one lock, so two
// workers can never both obtain a slot inside one crawl delay. When the slot
// is still closed, the returned time is when it opens.
func (s *Store) ReserveDispatch(host string) (time.Time, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.hosts[host]
	if !ok {
		s.hosts[host] = &hostState{lastDispatch: now}
		return time.Time{}, true
	}

	if !state.lastDispatch.IsZero() {
		if next := state.lastDispatch.Add(s.delayLocked(state)); now.Before(next) {
			return next, false
		}
	}

	state.lastDispatch = now

	return time.Time{}, true
}

// delayLocked returns the politeness delay for a host state. Caller holds mu.
func (s *Store) delayLocked(state *hostState) time.Duration {
	if state.policy != nil && state.policy.CrawlDelay > 0 {
		return state.policy.CrawlDelay
	}
	return s.cfg.DefaultCrawlDelay
}

// robotsStale reports whether the cached robots.txt needs refreshing.
func (s *Store) robotsStale(record *domain.Domain) bool {
	if record.LastRobotsCheck == nil {
		return true
	}

	return s.now().Sub(*record.LastRobotsCheck) > s.cfg.RobotsTTL
}

// refreshRobots fetches and persists robots.txt for the domain record.
// Outcomes follow standard crawler practice: 2xx bodies are cached and
// parsed, 401/403 deny the host until the next refresh, other 4xx and any
// transport failure fail open. last_robots_check is stamped in every case so
// a failing host is not re-probed on each dispatch.
func (s *Store) refreshRobots(ctx context.Context, record *domain.Domain) (*domain.Domain, error) {
	host := record.Domain

	var (
		text       *string
		delay      = record.CrawlDelay
		allowCrawl = record.AllowCrawl
	)

	body, statusCode, fetchErr := s.fetcher.FetchRobots(ctx, host)
	switch {
	case fetchErr != nil:
		s.log.Warn("robots.txt fetch failed, defaulting to allow",
			"host", host,
			"error", fetchErr.Error(),
		)

	case statusCode >= 200 && statusCode < 300:
		t := string(body)
		text = &t
		if d := s.robotsCrawlDelay(body); d > 0 {
			delay = d
		}
		allowCrawl = true

	case statusCode == 401 || statusCode == 403:
		s.log.Warn("robots.txt forbidden, denying host", "host", host, "status", statusCode)
		allowCrawl = false

	default:
		s.log.Debug("robots.txt unavailable, defaulting to allow", "host", host, "status", statusCode)
	}

	if err := s.domains.UpdateRobots(ctx, host, text, delay, allowCrawl); err != nil {
		return nil, fmt.Errorf("policy refresh: %w", err)
	}

	record.RobotsTxt = text
	record.CrawlDelay = delay
	record.AllowCrawl = allowCrawl
	now := s.now()
	record.LastRobotsCheck = &now

	return record, nil
}

// robotsCrawlDelay extracts the crawl-delay for our user agent in seconds.
func (s *Store) robotsCrawlDelay(body []byte) float64 {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return 0
	}

	group := data.FindGroup(s.cfg.UserAgent)
	if group == nil {
		return 0
	}

	return group.CrawlDelay.Seconds()
}

// buildPolicy assembles the evaluated policy from a domain record.
func (s *Store) buildPolicy(record *domain.Domain) *Policy {
	pol := &Policy{
		Host:       record.Domain,
		AllowCrawl: record.AllowCrawl,
		CrawlDelay: time.Duration(record.CrawlDelay * float64(time.Second)),
	}

	if record.RobotsTxt != nil {
		if data, err := robotstxt.FromString(*record.RobotsTxt); err == nil {
			pol.robots = data
		}
	}

	return pol
}
