// Package scheduler runs the crawl loop for a session: claim an eligible
// queue entry, consult domain policy, dispatch the fetch, record results,
// and enqueue discovered links until the frontier drains.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/extract"
	"github.com/quarryhq/quarry/internal/fetch"
	"github.com/quarryhq/quarry/internal/frontier"
)

// Default configuration values.
const (
	DefaultWorkers            = 4
	DefaultStorageErrorBudget = 5
	DefaultIdleWait           = 2 * time.Second

	internalLinkPriority = domain.QueueDefaultPriority
	externalLinkPriority = domain.QueueDefaultPriority - 2
)

// errSessionDone signals workers that the frontier drained. It never leaves
// Run.
var errSessionDone = errors.New("session done")

// Frontier is the queue surface the scheduler drives.
type Frontier interface {
	Enqueue(ctx context.Context, sessionID, rawURL string, priority int) (frontier.EnqueueResult, error)
	DequeueNext(ctx context.Context, sessionID string) (*domain.QueueEntry, error)
	MarkCompleted(ctx context.Context, entry *domain.QueueEntry) error
	MarkFailed(ctx context.Context, entry *domain.QueueEntry, reason string, retriable bool) error
	IsExhausted(ctx context.Context, sessionID string) (bool, error)
}

// DedupIndex resolves and records page rows.
type DedupIndex interface {
	ResolveByContentHash(ctx context.Context, hash string) (*domain.Page, error)
	RecordPage(ctx context.Context, page *domain.Page) error
	TouchCrawled(ctx context.Context, pageID string) error
}

// PolicyStore answers robots questions per host. Politeness slots are
// reserved by the frontier at claim time, not here.
type PolicyStore interface {
	IsAllowed(ctx context.Context, host, requestURI string) (bool, error)
}

// LinkStore persists discovery edges.
type LinkStore interface {
	InsertBatch(ctx context.Context, links []*domain.Link) error
}

// SessionFinalizer applies terminal session transitions.
type SessionFinalizer interface {
	Finalize(ctx context.Context, sessionID, status string) error
}

// Logger is the logging surface the scheduler needs.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// Config holds scheduler settings.
type Config struct {
	// Workers is the size of the per-session worker pool.
	Workers int
	// StorageErrorBudget is how many consecutive storage failures are
	// tolerated before the session is aborted as failed.
	StorageErrorBudget int
	// IdleWait caps how long a worker sleeps when nothing is eligible.
	IdleWait time.Duration
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.StorageErrorBudget <= 0 {
		c.StorageErrorBudget = DefaultStorageErrorBudget
	}
	if c.IdleWait <= 0 {
		c.IdleWait = DefaultIdleWait
	}
	return c
}

// Scheduler executes crawl sessions over a shared frontier and store.
type Scheduler struct {
	frontier  Frontier
	dedup     DedupIndex
	policy    PolicyStore
	links     LinkStore
	sessions  SessionFinalizer
	fetcher   fetch.Fetcher
	extractor extract.Extractor
	log       Logger
	cfg       Config

	storageErrs atomic.Int32
}

// New creates a scheduler.
func New(
	fr Frontier,
	dedup DedupIndex,
	policy PolicyStore,
	links LinkStore,
	sessions SessionFinalizer,
	fetcher fetch.Fetcher,
	extractor extract.Extractor,
	log Logger,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		frontier:  fr,
		dedup:     dedup,
		policy:    policy,
		links:     links,
		sessions:  sessions,
		fetcher:   fetcher,
		extractor: extractor,
		log:       log,
		cfg:       cfg.WithDefaults(),
	}
}

// Run crawls the session until its frontier drains, the context is
// cancelled, or storage fails beyond the error budget. On a drained
// frontier the session is finalized as completed; on storage failure as
// failed. Cancellation leaves the session running so it can be resumed.
func (s *Scheduler) Run(ctx context.Context, sessionID string) error {
	s.log.Info("scheduler starting",
		"session_id", sessionID,
		"workers", s.cfg.Workers,
	)

	g, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		i := i
		g.Go(func() error {
			return s.worker(groupCtx, sessionID, i)
		})
	}

	err := g.Wait()

	switch {
	case err == nil || errors.Is(err, errSessionDone):
		return s.complete(ctx, sessionID)

	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// External cancellation: leave the session running for resumption.
		s.log.Info("scheduler cancelled", "session_id", sessionID)
		return ctx.Err()

	default:
		s.log.Error("scheduler aborting session", "session_id", sessionID, "error", err.Error())
		if finalizeErr := s.sessions.Finalize(ctx, sessionID, domain.SessionStatusFailed); finalizeErr != nil {
			s.log.Error("failed to finalize aborted session",
				"session_id", sessionID,
				"error", finalizeErr.Error(),
			)
		}
		return err
	}
}

// complete verifies the exhaustion condition and finalizes the session.
func (s *Scheduler) complete(ctx context.Context, sessionID string) error {
	exhausted, err := s.frontier.IsExhausted(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("completion check: %w", err)
	}

	if !exhausted {
		// Another scheduler process may still hold claimed entries.
		s.log.Info("frontier not exhausted at stop, leaving session running", "session_id", sessionID)
		return nil
	}

	if finalizeErr := s.sessions.Finalize(ctx, sessionID, domain.SessionStatusCompleted); finalizeErr != nil {
		return fmt.Errorf("finalize completed session: %w", finalizeErr)
	}

	s.log.Info("crawl session completed", "session_id", sessionID)

	return nil
}

// worker is a single crawl worker loop.
func (s *Scheduler) worker(ctx context.Context, sessionID string, workerID int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entry, err := s.frontier.DequeueNext(ctx, sessionID)

		var notEligible *frontier.NotEligibleError
		switch {
		case errors.Is(err, frontier.ErrExhausted):
			return errSessionDone

		case errors.As(err, &notEligible):
			if waitErr := sleepCtx(ctx, minDuration(notEligible.WaitFor, s.cfg.IdleWait)); waitErr != nil {
				return waitErr
			}
			continue

		case err != nil:
			if budgetErr := s.noteStorageError(err); budgetErr != nil {
				return budgetErr
			}
			if waitErr := sleepCtx(ctx, s.cfg.IdleWait); waitErr != nil {
				return waitErr
			}
			continue
		}

		s.storageErrs.Store(0)

		if processErr := s.process(ctx, entry); processErr != nil {
			// A process error here means a failed store write, not a failed
			// fetch; fetch failures are absorbed into the entry's state.
			if budgetErr := s.noteStorageError(processErr); budgetErr != nil {
				return budgetErr
			}
			s.log.Error("processing failed",
				"worker_id", workerID,
				"url", entry.URL,
				"error", processErr.Error(),
			)
		}
	}
}

// process runs one claimed entry through policy check, fetch, and recording.
func (s *Scheduler) process(ctx context.Context, entry *domain.QueueEntry) error {
	target, parseErr := url.Parse(entry.URL)
	if parseErr != nil {
		return s.frontier.MarkFailed(ctx, entry, "malformed_url", false)
	}

	// Robots rules can match on the query string, so the full request URI
	// is evaluated, not just the path.
	allowed, policyErr := s.policy.IsAllowed(ctx, target.Hostname(), target.RequestURI())
	if policyErr != nil {
		// Policy lookups hit the store; retry the entry rather than failing it.
		if markErr := s.frontier.MarkFailed(ctx, entry, "policy_unavailable", true); markErr != nil {
			return markErr
		}
		return policyErr
	}

	if !allowed {
		return s.denyByPolicy(ctx, entry)
	}

	resp, fetchErr := s.fetcher.Fetch(ctx, entry.URL)
	if fetchErr != nil {
		return s.recordFetchError(ctx, entry, fetchErr)
	}

	if !fetch.SuccessStatus(resp.StatusCode) {
		return s.recordHTTPFailure(ctx, entry, resp)
	}

	return s.recordSuccess(ctx, entry, resp)
}

// denyByPolicy terminally fails a robots-disallowed entry. The denial is
// recorded on the page row but not counted as a crawl error.
func (s *Scheduler) denyByPolicy(ctx context.Context, entry *domain.QueueEntry) error {
	reason := frontier.ReasonRobotsDisallowed

	page := &domain.Page{
		CrawlSessionID: entry.CrawlSessionID,
		URL:            entry.URL,
		ErrorMessage:   &reason,
	}
	if recordErr := s.dedup.RecordPage(ctx, page); recordErr != nil {
		return recordErr
	}

	if markErr := s.frontier.MarkFailed(ctx, entry, reason, false); markErr != nil {
		return markErr
	}

	s.log.Info("url denied by robots policy", "url", entry.URL)

	return nil
}

// recordFetchError absorbs a transport failure into the entry's state.
func (s *Scheduler) recordFetchError(ctx context.Context, entry *domain.QueueEntry, fetchErr error) error {
	retriable := fetch.Retriable(fetchErr)

	msg := fetchErr.Error()
	page := &domain.Page{
		CrawlSessionID: entry.CrawlSessionID,
		URL:            entry.URL,
		ErrorMessage:   &msg,
	}
	if recordErr := s.dedup.RecordPage(ctx, page); recordErr != nil {
		return recordErr
	}

	if markErr := s.frontier.MarkFailed(ctx, entry, msg, retriable); markErr != nil {
		return markErr
	}

	s.log.Info("fetch failed", "url", entry.URL, "retriable", retriable, "error", msg)

	return nil
}

// recordHTTPFailure handles a completed fetch with a non-2xx status.
func (s *Scheduler) recordHTTPFailure(ctx context.Context, entry *domain.QueueEntry, resp *fetch.Response) error {
	retriable := fetch.RetriableStatus(resp.StatusCode)
	reason := fmt.Sprintf("http status %d", resp.StatusCode)

	statusCode := resp.StatusCode
	page := &domain.Page{
		CrawlSessionID: entry.CrawlSessionID,
		URL:            entry.URL,
		StatusCode:     &statusCode,
		ErrorMessage:   &reason,
	}
	if recordErr := s.dedup.RecordPage(ctx, page); recordErr != nil {
		return recordErr
	}

	if markErr := s.frontier.MarkFailed(ctx, entry, reason, retriable); markErr != nil {
		return markErr
	}

	s.log.Info("fetch returned error status", "url", entry.URL, "status", resp.StatusCode)

	return nil
}

// recordSuccess records the fetched page, extracts and enqueues links, and
// completes the entry. When the content hash matches a previous crawl of the
// same URL, extraction is skipped and only crawled_at is refreshed.
func (s *Scheduler) recordSuccess(ctx context.Context, entry *domain.QueueEntry, resp *fetch.Response) error {
	hash := extract.HashBody(resp.Body)

	existing, resolveErr := s.dedup.ResolveByContentHash(ctx, hash)
	if resolveErr != nil {
		return resolveErr
	}

	if existing != nil && existing.URL == entry.URL {
		if touchErr := s.dedup.TouchCrawled(ctx, existing.ID); touchErr != nil {
			return touchErr
		}

		s.log.Debug("content unchanged, extraction skipped", "url", entry.URL)

		return s.frontier.MarkCompleted(ctx, entry)
	}

	result, extractErr := s.extractor.Extract(entry.URL, resp.Body)
	if extractErr != nil {
		// Unparseable bodies still count as crawled; there is just nothing
		// to extract from them.
		s.log.Warn("extraction failed", "url", entry.URL, "error", extractErr.Error())
		result = &extract.Result{ContentHash: hash}
	}

	page := buildPage(entry, resp, result, hash)
	if recordErr := s.dedup.RecordPage(ctx, page); recordErr != nil {
		return recordErr
	}

	if linkErr := s.recordLinks(ctx, entry, page, result.Links); linkErr != nil {
		return linkErr
	}

	if completeErr := s.frontier.MarkCompleted(ctx, entry); completeErr != nil {
		return completeErr
	}

	s.log.Info("page crawled",
		"url", entry.URL,
		"status", resp.StatusCode,
		"links", len(result.Links),
	)

	return nil
}

// recordLinks persists discovery edges and admits their targets to the queue.
func (s *Scheduler) recordLinks(
	ctx context.Context,
	entry *domain.QueueEntry,
	page *domain.Page,
	found []extract.Link,
) error {
	if len(found) == 0 {
		return nil
	}

	rows := make([]*domain.Link, 0, len(found))
	for _, link := range found {
		var text *string
		if link.Text != "" {
			t := link.Text
			text = &t
		}

		rows = append(rows, &domain.Link{
			SourcePageID: page.ID,
			TargetURL:    link.TargetURL,
			LinkText:     text,
			LinkType:     link.Type,
		})
	}

	if err := s.links.InsertBatch(ctx, rows); err != nil {
		return err
	}

	for _, link := range found {
		priority := internalLinkPriority
		if link.Type == domain.LinkTypeExternal {
			priority = externalLinkPriority
		}

		result, enqueueErr := s.frontier.Enqueue(ctx, entry.CrawlSessionID, link.TargetURL, priority)
		if enqueueErr != nil {
			// Unnormalizable targets are recorded as links but not crawlable.
			s.log.Debug("discovered link not queued", "url", link.TargetURL, "error", enqueueErr.Error())
			continue
		}

		s.log.Debug("discovered link", "url", link.TargetURL, "result", result.String())
	}

	return nil
}

// buildPage assembles the page row for a successful fetch.
func buildPage(
	entry *domain.QueueEntry,
	resp *fetch.Response,
	result *extract.Result,
	hash string,
) *domain.Page {
	statusCode := resp.StatusCode

	page := &domain.Page{
		CrawlSessionID: entry.CrawlSessionID,
		URL:            entry.URL,
		ContentHash:    &hash,
		StatusCode:     &statusCode,
		ContentLength:  &resp.ContentLength,
		LastModified:   resp.LastModified,
	}

	if resp.ContentType != "" {
		ct := resp.ContentType
		page.ContentType = &ct
	}
	if result.Title != "" {
		t := result.Title
		page.Title = &t
	}
	if result.Description != "" {
		d := result.Description
		page.Description = &d
	}
	if result.Language != "" {
		l := result.Language
		page.Language = &l
	}

	return page
}

// noteStorageError counts a consecutive storage failure against the budget.
func (s *Scheduler) noteStorageError(err error) error {
	if n := s.storageErrs.Add(1); int(n) >= s.cfg.StorageErrorBudget {
		return fmt.Errorf("storage error budget exhausted: %w", err)
	}

	s.log.Warn("storage error", "error", err.Error())

	return nil
}

// sleepCtx sleeps for d or returns early when the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
