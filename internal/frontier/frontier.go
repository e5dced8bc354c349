package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quarryhq/quarry/internal/domain"
)

// ReasonRobotsDisallowed marks entries denied by robots.txt. Policy denials
// are recorded as failed entries but do not count toward a session's
// errors_encountered.
const ReasonRobotsDisallowed = "robots_disallowed"

// Default policy constants. The schema does not fix a retry budget or
// backoff formula, so these are engine policy.
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 30 * time.Second
	DefaultBatchSize   = 50
	DefaultPollWait    = 2 * time.Second
)

// ErrExhausted is returned by DequeueNext when the session has no pending or
// processing entries left.
var ErrExhausted = errors.New("frontier exhausted")

// NotEligibleError is returned by DequeueNext when pending entries exist but
// none may be dispatched yet, either because their hosts are rate-limited or
// because they are in retry backoff. WaitFor is the suggested sleep before
// the next attempt.
type NotEligibleError struct {
	WaitFor time.Duration
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("no entry eligible for %s", e.WaitFor)
}

// EnqueueResult reports the outcome of an Enqueue call.
type EnqueueResult int

const (
	// EnqueueInserted means a new pending entry was created.
	EnqueueInserted EnqueueResult = iota
	// EnqueueAlreadyQueued means the session already has an entry for the URL.
	EnqueueAlreadyQueued
	// EnqueueAlreadyCrawled means the URL already has a page row and the
	// recrawl policy skips it.
	EnqueueAlreadyCrawled
)

// String returns the string representation of an enqueue result.
func (r EnqueueResult) String() string {
	switch r {
	case EnqueueInserted:
		return "inserted"
	case EnqueueAlreadyQueued:
		return "already_queued"
	case EnqueueAlreadyCrawled:
		return "already_crawled"
	default:
		return "unknown"
	}
}

// QueueStore is the subset of queue persistence the frontier drives.
type QueueStore interface {
	Enqueue(ctx context.Context, sessionID, url string, priority int) (bool, error)
	SelectDispatchable(ctx context.Context, sessionID string, limit int) ([]*domain.QueueEntry, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id, sessionID string) error
	Retry(ctx context.Context, id string, demotedPriority int) error
	MarkFailed(ctx context.Context, id, sessionID string, countError bool) error
	CountActive(ctx context.Context, sessionID string) (int, error)
	ResetProcessing(ctx context.Context, sessionID string) (int64, error)
}

// CrawledChecker answers whether a normalized URL already has a page row.
type CrawledChecker interface {
	IsCrawled(ctx context.Context, url string) (bool, error)
}

// HostEligibility hands out per-host dispatch slots. A reservation must be
// atomic: checking the crawl-delay gap and advancing the host clock in one
// step, so concurrent dequeues cannot both dispatch to a host inside one
// delay. When the slot is refused, the returned time is when it opens.
type HostEligibility interface {
	ReserveDispatch(host string) (time.Time, bool)
}

// Logger is the logging surface the frontier needs.
type Logger interface {
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
}

// Config holds frontier policy knobs.
type Config struct {
	// MaxRetries bounds transient retries before an entry fails terminally.
	MaxRetries int
	// BaseBackoff is the base of the exponential retry backoff.
	BaseBackoff time.Duration
	// BatchSize is how many pending candidates one dequeue inspects.
	BatchSize int
	// PollWait is the fallback wait suggested when nothing is eligible and
	// no concrete wake-up time is known.
	PollWait time.Duration
	// RecrawlCompleted re-queues URLs that already have a page row instead
	// of reporting them as already crawled.
	RecrawlCompleted bool
}

// WithDefaults returns a copy of the config with defaults applied to
// zero-value fields.
func (c Config) WithDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollWait <= 0 {
		c.PollWait = DefaultPollWait
	}
	return c
}

// Frontier is the URL work queue for crawl sessions. Dispatch order is
// priority-first with FIFO tie-break; per-host politeness and retry backoff
// gate which pending entries are currently eligible. Status transitions are
// atomic in the store, so multiple frontiers may share one database.
type Frontier struct {
	queue   QueueStore
	crawled CrawledChecker
	hosts   HostEligibility
	log     Logger
	cfg     Config

	// notBefore holds in-memory retry backoff deadlines per entry ID.
	// Lost on restart, which only means a retried entry becomes eligible
	// early; the retry budget itself is persisted in retry_count.
	mu        sync.Mutex
	notBefore map[string]time.Time

	now func() time.Time
}

// New creates a frontier over the given stores.
func New(queue QueueStore, crawled CrawledChecker, hosts HostEligibility, log Logger, cfg Config) *Frontier {
	return &Frontier{
		queue:     queue,
		crawled:   crawled,
		hosts:     hosts,
		log:       log,
		cfg:       cfg.WithDefaults(),
		notBefore: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Enqueue normalizes the URL and admits it to the session's queue.
// Duplicates within the session and URLs already crawled (under the default
// recrawl policy) are silently reported, not errors.
func (f *Frontier) Enqueue(
	ctx context.Context,
	sessionID, rawURL string,
	priority int,
) (EnqueueResult, error) {
	return f.enqueue(ctx, sessionID, rawURL, priority, false)
}

// EnqueueSeed admits a session's start URL at maximum priority. The crawled
// check is bypassed: starting a session is an explicit request to fetch the
// URL again, whatever earlier sessions did with it.
func (f *Frontier) EnqueueSeed(ctx context.Context, sessionID, rawURL string) (EnqueueResult, error) {
	return f.enqueue(ctx, sessionID, rawURL, domain.QueueMaxPriority, true)
}

func (f *Frontier) enqueue(
	ctx context.Context,
	sessionID, rawURL string,
	priority int,
	seed bool,
) (EnqueueResult, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return 0, err
	}

	if !seed && !f.cfg.RecrawlCompleted {
		crawled, crawledErr := f.crawled.IsCrawled(ctx, normalized)
		if crawledErr != nil {
			return 0, fmt.Errorf("frontier enqueue: %w", crawledErr)
		}
		if crawled {
			return EnqueueAlreadyCrawled, nil
		}
	}

	if priority < domain.QueueMinPriority {
		priority = domain.QueueMinPriority
	}
	if priority > domain.QueueMaxPriority {
		priority = domain.QueueMaxPriority
	}

	inserted, enqueueErr := f.queue.Enqueue(ctx, sessionID, normalized, priority)
	if enqueueErr != nil {
		return 0, fmt.Errorf("frontier enqueue: %w", enqueueErr)
	}

	if !inserted {
		return EnqueueAlreadyQueued, nil
	}

	f.log.Debug("url enqueued", "session_id", sessionID, "url", normalized, "priority", priority)

	return EnqueueInserted, nil
}

// DequeueNext claims the highest-priority pending entry whose host is
// currently eligible. Returns ErrExhausted when the session has no work
// left at all, or a NotEligibleError carrying a wait hint when entries exist
// but none may be dispatched yet. The claim transition is the
// mutual-exclusion point: a returned entry is already in processing state.
func (f *Frontier) DequeueNext(ctx context.Context, sessionID string) (*domain.QueueEntry, error) {
	candidates, err := f.queue.SelectDispatchable(ctx, sessionID, f.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("frontier dequeue: %w", err)
	}

	if len(candidates) == 0 {
		return nil, f.emptyDequeueError(ctx, sessionID)
	}

	now := f.now()
	earliestWake := time.Time{}

	for _, entry := range candidates {
		if deadline, waiting := f.retryBackoff(entry.ID, now); waiting {
			if earliestWake.IsZero() || deadline.Before(earliestWake) {
				earliestWake = deadline
			}
			continue
		}

		// The host slot is reserved before the row claim: reservation is the
		// atomic step that keeps the crawl-delay gap between workers.
		if opensAt, ok := f.reserveHost(entry.URL); !ok {
			if earliestWake.IsZero() || opensAt.Before(earliestWake) {
				earliestWake = opensAt
			}
			continue
		}

		claimed, claimErr := f.queue.Claim(ctx, entry.ID)
		if claimErr != nil {
			return nil, fmt.Errorf("frontier dequeue: %w", claimErr)
		}
		if !claimed {
			// Another worker won the row; the reserved slot goes unused,
			// which only widens the host's gap.
			continue
		}

		f.markDispatched(entry)
		entry.Status = domain.QueueStatusProcessing

		return entry, nil
	}

	wait := f.cfg.PollWait
	if !earliestWake.IsZero() {
		if until := earliestWake.Sub(now); until > 0 && until < wait {
			wait = until
		}
	}

	return nil, &NotEligibleError{WaitFor: wait}
}

// MarkCompleted transitions a claimed entry to terminal completed. The
// session's pages_crawled counter moves in the same transaction.
func (f *Frontier) MarkCompleted(ctx context.Context, entry *domain.QueueEntry) error {
	if err := f.queue.MarkCompleted(ctx, entry.ID, entry.CrawlSessionID); err != nil {
		return fmt.Errorf("frontier complete: %w", err)
	}

	f.clearBackoff(entry.ID)
	entry.Status = domain.QueueStatusCompleted

	return nil
}

// MarkFailed records a failed dispatch. Retriable failures under the retry
// budget return the entry to pending with a demoted priority and an
// exponential backoff before the next attempt; everything else is terminal.
// Terminal failures increment errors_encountered unless the reason is a
// robots policy denial.
func (f *Frontier) MarkFailed(
	ctx context.Context,
	entry *domain.QueueEntry,
	reason string,
	retriable bool,
) error {
	if retriable && entry.RetryCount < f.cfg.MaxRetries {
		return f.scheduleRetry(ctx, entry, reason)
	}

	countError := reason != ReasonRobotsDisallowed

	if err := f.queue.MarkFailed(ctx, entry.ID, entry.CrawlSessionID, countError); err != nil {
		return fmt.Errorf("frontier fail: %w", err)
	}

	f.clearBackoff(entry.ID)
	entry.Status = domain.QueueStatusFailed

	f.log.Warn("queue entry failed terminally",
		"session_id", entry.CrawlSessionID,
		"url", entry.URL,
		"reason", reason,
		"retry_count", entry.RetryCount,
	)

	return nil
}

// IsExhausted reports whether no pending or processing entries remain for
// the session. Entries in retry backoff are still pending rows, so a session
// cannot complete while one is waiting.
func (f *Frontier) IsExhausted(ctx context.Context, sessionID string) (bool, error) {
	active, err := f.queue.CountActive(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("frontier exhausted check: %w", err)
	}

	return active == 0, nil
}

// ResetStale returns entries orphaned in processing state to pending.
// Called on startup per the crash-recovery rule; dispatch is at-least-once.
func (f *Frontier) ResetStale(ctx context.Context, sessionID string) (int64, error) {
	n, err := f.queue.ResetProcessing(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("frontier reset: %w", err)
	}

	if n > 0 {
		f.log.Warn("reset stale processing entries", "session_id", sessionID, "count", n)
	}

	return n, nil
}

// scheduleRetry returns the entry to pending with backoff bookkeeping.
func (f *Frontier) scheduleRetry(ctx context.Context, entry *domain.QueueEntry, reason string) error {
	demoted := entry.Priority - 1
	if demoted < domain.QueueMinPriority {
		demoted = domain.QueueMinPriority
	}

	if err := f.queue.Retry(ctx, entry.ID, demoted); err != nil {
		return fmt.Errorf("frontier retry: %w", err)
	}

	newCount := entry.RetryCount + 1
	backoff := f.cfg.BaseBackoff * (1 << newCount)

	f.mu.Lock()
	f.notBefore[entry.ID] = f.now().Add(backoff)
	f.mu.Unlock()

	entry.RetryCount = newCount
	entry.Priority = demoted
	entry.Status = domain.QueueStatusPending

	f.log.Debug("queue entry scheduled for retry",
		"url", entry.URL,
		"reason", reason,
		"retry_count", newCount,
		"backoff", backoff.String(),
	)

	return nil
}

// retryBackoff reports whether the entry is still inside its retry backoff;
// when it is, the returned time is the backoff deadline.
func (f *Frontier) retryBackoff(id string, now time.Time) (time.Time, bool) {
	f.mu.Lock()
	deadline, ok := f.notBefore[id]
	f.mu.Unlock()

	if ok && now.Before(deadline) {
		return deadline, true
	}

	return time.Time{}, false
}

// reserveHost claims the politeness slot for the entry's host. Malformed
// rows that slipped past normalization are treated as reservable so the
// scheduler can claim and fail them terminally rather than wedging the queue.
func (f *Frontier) reserveHost(rawURL string) (time.Time, bool) {
	host, err := ExtractHost(rawURL)
	if err != nil {
		return time.Time{}, true
	}

	return f.hosts.ReserveDispatch(host)
}

// markDispatched clears any expired backoff record for the entry.
func (f *Frontier) markDispatched(entry *domain.QueueEntry) {
	f.clearBackoff(entry.ID)
}

func (f *Frontier) clearBackoff(id string) {
	f.mu.Lock()
	delete(f.notBefore, id)
	f.mu.Unlock()
}

// emptyDequeueError distinguishes a fully exhausted session from one whose
// remaining entries are all mid-flight.
func (f *Frontier) emptyDequeueError(ctx context.Context, sessionID string) error {
	active, err := f.queue.CountActive(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("frontier dequeue: %w", err)
	}

	if active == 0 {
		return ErrExhausted
	}

	return &NotEligibleError{WaitFor: f.cfg.PollWait}
}
