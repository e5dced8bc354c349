package frontier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarryhq/quarry/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// fakeQueue is an in-memory QueueStore keyed by entry ID.
type fakeQueue struct {
	entries   map[string]*domain.QueueEntry
	order     []string
	pages     map[string]int
	errors    map[string]int
	claimFail map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		entries:   make(map[string]*domain.QueueEntry),
		pages:     make(map[string]int),
		errors:    make(map[string]int),
		claimFail: make(map[string]bool),
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, sessionID, url string, priority int) (bool, error) {
	for _, e := range q.entries {
		if e.CrawlSessionID == sessionID && e.URL == url {
			return false, nil
		}
	}

	id := url
	q.entries[id] = &domain.QueueEntry{
		ID:             id,
		CrawlSessionID: sessionID,
		URL:            url,
		Priority:       priority,
		Status:         domain.QueueStatusPending,
	}
	q.order = append(q.order, id)

	return true, nil
}

func (q *fakeQueue) SelectDispatchable(_ context.Context, sessionID string, limit int) ([]*domain.QueueEntry, error) {
	var out []*domain.QueueEntry
	for _, id := range q.order {
		e := q.entries[id]
		if e.CrawlSessionID == sessionID && e.Status == domain.QueueStatusPending {
			copied := *e
			out = append(out, &copied)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *fakeQueue) Claim(_ context.Context, id string) (bool, error) {
	if q.claimFail[id] {
		return false, nil
	}
	e, ok := q.entries[id]
	if !ok || e.Status != domain.QueueStatusPending {
		return false, nil
	}
	e.Status = domain.QueueStatusProcessing
	return true, nil
}

func (q *fakeQueue) MarkCompleted(_ context.Context, id, sessionID string) error {
	e, ok := q.entries[id]
	if !ok || e.Status != domain.QueueStatusProcessing {
		return errors.New("entry not processing")
	}
	e.Status = domain.QueueStatusCompleted
	q.pages[sessionID]++
	return nil
}

func (q *fakeQueue) Retry(_ context.Context, id string, demotedPriority int) error {
	e, ok := q.entries[id]
	if !ok || e.Status != domain.QueueStatusProcessing {
		return errors.New("entry not processing")
	}
	e.Status = domain.QueueStatusPending
	e.RetryCount++
	e.Priority = demotedPriority
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id, sessionID string, countError bool) error {
	e, ok := q.entries[id]
	if !ok || e.Status != domain.QueueStatusProcessing {
		return errors.New("entry not processing")
	}
	e.Status = domain.QueueStatusFailed
	if countError {
		q.errors[sessionID]++
	}
	return nil
}

func (q *fakeQueue) CountActive(_ context.Context, sessionID string) (int, error) {
	count := 0
	for _, e := range q.entries {
		if e.CrawlSessionID != sessionID {
			continue
		}
		if e.Status == domain.QueueStatusPending || e.Status == domain.QueueStatusProcessing {
			count++
		}
	}
	return count, nil
}

func (q *fakeQueue) ResetProcessing(_ context.Context, sessionID string) (int64, error) {
	var n int64
	for _, e := range q.entries {
		if e.CrawlSessionID == sessionID && e.Status == domain.QueueStatusProcessing {
			e.Status = domain.QueueStatusPending
			n++
		}
	}
	return n, nil
}

type fakeCrawled struct {
	crawled map[string]bool
}

func (c *fakeCrawled) IsCrawled(_ context.Context, url string) (bool, error) {
	return c.crawled[url], nil
}

// fakeHosts hands out dispatch slots; a host with a future open time refuses
// reservations until then.
type fakeHosts struct {
	next     map[string]time.Time
	now      func() time.Time
	reserved map[string]int
}

func (h *fakeHosts) ReserveDispatch(host string) (time.Time, bool) {
	if next, ok := h.next[host]; ok && h.now().Before(next) {
		return next, false
	}
	h.reserved[host]++
	return time.Time{}, true
}

func newTestFrontier(cfg Config) (*Frontier, *fakeQueue, *fakeCrawled, *fakeHosts) {
	queue := newFakeQueue()
	crawled := &fakeCrawled{crawled: make(map[string]bool)}
	hosts := &fakeHosts{
		next:     make(map[string]time.Time),
		now:      time.Now,
		reserved: make(map[string]int),
	}
	f := New(queue, crawled, hosts, nopLogger{}, cfg)
	return f, queue, crawled, hosts
}

func TestFrontier_Enqueue_NormalizesAndInserts(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	result, err := f.Enqueue(ctx, "session-1", "HTTPS://Example.com/Page/?utm_source=x", 5)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if result != EnqueueInserted {
		t.Fatalf("Enqueue() = %v, want EnqueueInserted", result)
	}

	entry, ok := queue.entries["https://example.com/Page"]
	if !ok {
		t.Fatalf("expected normalized URL in queue, got %v", queue.order)
	}
	if entry.Priority != 5 {
		t.Errorf("expected priority=5, got %d", entry.Priority)
	}
}

func TestFrontier_Enqueue_DuplicateReportsAlreadyQueued(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Same URL spelled differently still collides after normalization.
	result, err := f.Enqueue(ctx, "session-1", "https://EXAMPLE.com/page/", 8)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if result != EnqueueAlreadyQueued {
		t.Errorf("Enqueue() = %v, want EnqueueAlreadyQueued", result)
	}
}

func TestFrontier_Enqueue_AlreadyCrawled(t *testing.T) {
	f, queue, crawled, _ := newTestFrontier(Config{})
	ctx := context.Background()

	crawled.crawled["https://example.com/page"] = true

	result, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if result != EnqueueAlreadyCrawled {
		t.Errorf("Enqueue() = %v, want EnqueueAlreadyCrawled", result)
	}
	if len(queue.entries) != 0 {
		t.Errorf("expected nothing queued, got %d entries", len(queue.entries))
	}
}

func TestFrontier_Enqueue_RecrawlCompletedBypassesDedup(t *testing.T) {
	f, _, crawled, _ := newTestFrontier(Config{RecrawlCompleted: true})
	ctx := context.Background()

	crawled.crawled["https://example.com/page"] = true

	result, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if result != EnqueueInserted {
		t.Errorf("Enqueue() = %v, want EnqueueInserted under recrawl policy", result)
	}
}

func TestFrontier_EnqueueSeed_BypassesCrawledCheck(t *testing.T) {
	f, queue, crawled, _ := newTestFrontier(Config{})
	ctx := context.Background()

	// The URL was crawled by an earlier session; seeding a new session with
	// it is an explicit request to crawl again.
	crawled.crawled["https://example.com/page"] = true

	result, err := f.EnqueueSeed(ctx, "session-2", "https://example.com/page")
	if err != nil {
		t.Fatalf("EnqueueSeed() error = %v", err)
	}
	if result != EnqueueInserted {
		t.Fatalf("EnqueueSeed() = %v, want EnqueueInserted for a crawled URL", result)
	}

	entry, ok := queue.entries["https://example.com/page"]
	if !ok {
		t.Fatal("expected seed entry in queue")
	}
	if entry.Priority != domain.QueueMaxPriority {
		t.Errorf("expected seed at priority %d, got %d", domain.QueueMaxPriority, entry.Priority)
	}
}

func TestFrontier_Enqueue_ClampsPriority(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/high", 99); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/low", -4); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if got := queue.entries["https://example.com/high"].Priority; got != domain.QueueMaxPriority {
		t.Errorf("expected priority clamped to %d, got %d", domain.QueueMaxPriority, got)
	}
	if got := queue.entries["https://example.com/low"].Priority; got != domain.QueueMinPriority {
		t.Errorf("expected priority clamped to %d, got %d", domain.QueueMinPriority, got)
	}
}

func TestFrontier_Enqueue_RejectsMalformedURL(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})

	if _, err := f.Enqueue(context.Background(), "session-1", "ftp://example.com/file", 5); err == nil {
		t.Error("Enqueue() expected error for unsupported scheme, got nil")
	}
}

func TestFrontier_DequeueNext_ClaimsAndTransitions(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}
	if entry.Status != domain.QueueStatusProcessing {
		t.Errorf("expected returned entry in processing state, got %s", entry.Status)
	}
	if queue.entries[entry.ID].Status != domain.QueueStatusProcessing {
		t.Errorf("expected stored entry claimed, got %s", queue.entries[entry.ID].Status)
	}
}

func TestFrontier_DequeueNext_ExhaustedWhenNoWorkLeft(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})

	_, err := f.DequeueNext(context.Background(), "session-1")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("DequeueNext() expected ErrExhausted, got %v", err)
	}
}

func TestFrontier_DequeueNext_NotEligibleWhileEntryInFlight(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.DequeueNext(ctx, "session-1"); err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	// The only entry is processing: not exhausted, just nothing dispatchable.
	_, err := f.DequeueNext(ctx, "session-1")

	var notEligible *NotEligibleError
	if !errors.As(err, &notEligible) {
		t.Fatalf("DequeueNext() expected NotEligibleError, got %v", err)
	}

	exhausted, exhaustErr := f.IsExhausted(ctx, "session-1")
	if exhaustErr != nil {
		t.Fatalf("IsExhausted() error = %v", exhaustErr)
	}
	if exhausted {
		t.Error("IsExhausted() = true while an entry is in flight")
	}
}

func TestFrontier_DequeueNext_SkipsRateLimitedHost(t *testing.T) {
	f, _, _, hosts := newTestFrontier(Config{PollWait: 10 * time.Second})
	ctx := context.Background()

	base := time.Now()
	f.now = func() time.Time { return base }
	hosts.now = f.now
	hosts.next["slow.example"] = base.Add(3 * time.Second)

	if _, err := f.Enqueue(ctx, "session-1", "https://slow.example/a", 8); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.Enqueue(ctx, "session-1", "https://fast.example/b", 2); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// The higher-priority entry's host is rate-limited, so the lower-priority
	// eligible one is dispatched instead.
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}
	if entry.URL != "https://fast.example/b" {
		t.Errorf("expected eligible host dispatched, got %s", entry.URL)
	}
}

func TestFrontier_DequeueNext_WaitHintFromRateLimitedHost(t *testing.T) {
	f, _, _, hosts := newTestFrontier(Config{PollWait: 10 * time.Second})
	ctx := context.Background()

	base := time.Now()
	f.now = func() time.Time { return base }
	hosts.now = f.now
	hosts.next["slow.example"] = base.Add(3 * time.Second)

	if _, err := f.Enqueue(ctx, "session-1", "https://slow.example/a", 8); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	_, err := f.DequeueNext(ctx, "session-1")

	var notEligible *NotEligibleError
	if !errors.As(err, &notEligible) {
		t.Fatalf("DequeueNext() expected NotEligibleError, got %v", err)
	}
	if notEligible.WaitFor != 3*time.Second {
		t.Errorf("expected wait hint 3s from host clock, got %s", notEligible.WaitFor)
	}
}

// throttledHosts is a reserve-or-wait dispatch clock with a fixed delay,
// advanced only by successful reservations.
type throttledHosts struct {
	delay time.Duration
	now   func() time.Time
	last  map[string]time.Time
}

func (h *throttledHosts) ReserveDispatch(host string) (time.Time, bool) {
	if last, ok := h.last[host]; ok {
		if next := last.Add(h.delay); h.now().Before(next) {
			return next, false
		}
	}
	h.last[host] = h.now()
	return time.Time{}, true
}

func TestFrontier_DequeueNext_SameHostSerializedByReservation(t *testing.T) {
	current := time.Now()
	nowFn := func() time.Time { return current }

	queue := newFakeQueue()
	crawled := &fakeCrawled{crawled: make(map[string]bool)}
	hosts := &throttledHosts{
		delay: time.Second,
		now:   nowFn,
		last:  make(map[string]time.Time),
	}
	f := New(queue, crawled, hosts, nopLogger{}, Config{PollWait: 10 * time.Second})
	f.now = nowFn
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://a.test/x", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.Enqueue(ctx, "session-1", "https://a.test/y", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	first, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	// A second worker arriving immediately, before the first dispatch has
	// gone anywhere, must not get the other entry for the same host.
	_, secondErr := f.DequeueNext(ctx, "session-1")

	var notEligible *NotEligibleError
	if !errors.As(secondErr, &notEligible) {
		t.Fatalf("DequeueNext() expected NotEligibleError inside crawl delay, got %v", secondErr)
	}
	if notEligible.WaitFor != time.Second {
		t.Errorf("expected wait hint equal to the crawl delay, got %s", notEligible.WaitFor)
	}

	// Once the delay has elapsed the second entry dispatches.
	current = current.Add(time.Second + time.Millisecond)

	second, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() after crawl delay error = %v", err)
	}
	if second.ID == first.ID {
		t.Errorf("expected a different entry on the second dispatch, got %s twice", second.ID)
	}
}

func TestFrontier_RetryLoop_FlakyURLCompletesAfterBackoffs(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{MaxRetries: 3, BaseBackoff: 30 * time.Second})
	ctx := context.Background()

	current := time.Now()
	f.now = func() time.Time { return current }

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/flaky", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Three transient failures, each waited out past its backoff.
	for attempt := 1; attempt <= 3; attempt++ {
		entry, err := f.DequeueNext(ctx, "session-1")
		if err != nil {
			t.Fatalf("DequeueNext() attempt %d error = %v", attempt, err)
		}
		if failErr := f.MarkFailed(ctx, entry, "http status 503", true); failErr != nil {
			t.Fatalf("MarkFailed() attempt %d error = %v", attempt, failErr)
		}
		if entry.Status != domain.QueueStatusPending {
			t.Fatalf("attempt %d: expected entry back to pending, got %s", attempt, entry.Status)
		}
		current = current.Add(time.Hour)
	}

	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() final attempt error = %v", err)
	}
	if entry.RetryCount != 3 {
		t.Errorf("expected retry_count=3 on the final attempt, got %d", entry.RetryCount)
	}

	if completeErr := f.MarkCompleted(ctx, entry); completeErr != nil {
		t.Fatalf("MarkCompleted() error = %v", completeErr)
	}

	if entry.Status != domain.QueueStatusCompleted {
		t.Errorf("expected completed status, got %s", entry.Status)
	}
	if queue.pages["session-1"] != 1 {
		t.Errorf("expected pages_crawled=1, got %d", queue.pages["session-1"])
	}
	if queue.errors["session-1"] != 0 {
		t.Errorf("a recovered URL must not count as an error, got %d", queue.errors["session-1"])
	}
}

func TestFrontier_DequeueNext_LosingClaimRaceMovesOn(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/a", 9); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/b", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Simulate another worker winning the claim on the first candidate.
	queue.claimFail["https://example.com/a"] = true

	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}
	if entry.URL != "https://example.com/b" {
		t.Errorf("expected next candidate claimed after losing race, got %s", entry.URL)
	}
}

func TestFrontier_MarkCompleted(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	if completeErr := f.MarkCompleted(ctx, entry); completeErr != nil {
		t.Fatalf("MarkCompleted() error = %v", completeErr)
	}
	if entry.Status != domain.QueueStatusCompleted {
		t.Errorf("expected completed status on entry, got %s", entry.Status)
	}
	if queue.pages["session-1"] != 1 {
		t.Errorf("expected pages_crawled=1, got %d", queue.pages["session-1"])
	}
}

func TestFrontier_MarkFailed_RetriableSchedulesBackoff(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{MaxRetries: 3, BaseBackoff: 30 * time.Second})
	ctx := context.Background()

	base := time.Now()
	f.now = func() time.Time { return base }

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	if failErr := f.MarkFailed(ctx, entry, "http status 503", true); failErr != nil {
		t.Fatalf("MarkFailed() error = %v", failErr)
	}

	if entry.Status != domain.QueueStatusPending {
		t.Errorf("expected entry returned to pending, got %s", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Errorf("expected retry_count=1, got %d", entry.RetryCount)
	}
	if entry.Priority != 4 {
		t.Errorf("expected demoted priority 4, got %d", entry.Priority)
	}

	// First retry backs off 2x the base delay.
	deadline, ok := f.notBefore[entry.ID]
	if !ok {
		t.Fatal("expected backoff deadline recorded")
	}
	if want := base.Add(60 * time.Second); !deadline.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, deadline)
	}

	// The entry is pending but ineligible until the deadline passes.
	_, dequeueErr := f.DequeueNext(ctx, "session-1")
	var notEligible *NotEligibleError
	if !errors.As(dequeueErr, &notEligible) {
		t.Fatalf("DequeueNext() expected NotEligibleError during backoff, got %v", dequeueErr)
	}

	// Advance past the deadline: dispatchable again.
	f.now = func() time.Time { return base.Add(61 * time.Second) }
	redispatched, redErr := f.DequeueNext(ctx, "session-1")
	if redErr != nil {
		t.Fatalf("DequeueNext() after backoff error = %v", redErr)
	}
	if redispatched.ID != entry.ID {
		t.Errorf("expected same entry redispatched, got %s", redispatched.ID)
	}

	if queue.errors["session-1"] != 0 {
		t.Errorf("retries must not count as errors, got %d", queue.errors["session-1"])
	}
}

func TestFrontier_MarkFailed_ExhaustedRetriesAreTerminal(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{MaxRetries: 3})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}
	entry.RetryCount = 3

	if failErr := f.MarkFailed(ctx, entry, "http status 503", true); failErr != nil {
		t.Fatalf("MarkFailed() error = %v", failErr)
	}
	if entry.Status != domain.QueueStatusFailed {
		t.Errorf("expected terminal failed status, got %s", entry.Status)
	}
	if queue.errors["session-1"] != 1 {
		t.Errorf("expected errors_encountered=1, got %d", queue.errors["session-1"])
	}
}

func TestFrontier_MarkFailed_PermanentFailureSkipsRetry(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/gone", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	if failErr := f.MarkFailed(ctx, entry, "http status 404", false); failErr != nil {
		t.Fatalf("MarkFailed() error = %v", failErr)
	}
	if entry.Status != domain.QueueStatusFailed {
		t.Errorf("expected failed status, got %s", entry.Status)
	}
	if entry.RetryCount != 0 {
		t.Errorf("expected no retry attempted, got retry_count=%d", entry.RetryCount)
	}
	if queue.errors["session-1"] != 1 {
		t.Errorf("expected errors_encountered=1, got %d", queue.errors["session-1"])
	}
}

func TestFrontier_MarkFailed_RobotsDenialNotCounted(t *testing.T) {
	f, queue, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/private", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	entry, err := f.DequeueNext(ctx, "session-1")
	if err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	if failErr := f.MarkFailed(ctx, entry, ReasonRobotsDisallowed, false); failErr != nil {
		t.Fatalf("MarkFailed() error = %v", failErr)
	}
	if entry.Status != domain.QueueStatusFailed {
		t.Errorf("expected failed status, got %s", entry.Status)
	}
	if queue.errors["session-1"] != 0 {
		t.Errorf("robots denial must not count as an error, got %d", queue.errors["session-1"])
	}
}

func TestFrontier_ResetStale(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/a", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := f.DequeueNext(ctx, "session-1"); err != nil {
		t.Fatalf("DequeueNext() error = %v", err)
	}

	n, err := f.ResetStale(ctx, "session-1")
	if err != nil {
		t.Fatalf("ResetStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reset entry, got %d", n)
	}

	// The reset entry is dispatchable again.
	if _, err := f.DequeueNext(ctx, "session-1"); err != nil {
		t.Fatalf("DequeueNext() after reset error = %v", err)
	}
}

func TestFrontier_IsExhausted(t *testing.T) {
	f, _, _, _ := newTestFrontier(Config{})
	ctx := context.Background()

	exhausted, err := f.IsExhausted(ctx, "session-1")
	if err != nil {
		t.Fatalf("IsExhausted() error = %v", err)
	}
	if !exhausted {
		t.Error("expected empty session exhausted")
	}

	if _, err := f.Enqueue(ctx, "session-1", "https://example.com/page", 5); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	exhausted, err = f.IsExhausted(ctx, "session-1")
	if err != nil {
		t.Fatalf("IsExhausted() error = %v", err)
	}
	if exhausted {
		t.Error("expected session with pending work not exhausted")
	}
}
