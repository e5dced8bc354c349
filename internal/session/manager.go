// Package session manages crawl session lifecycle: creation with the seed
// URL, terminal transitions, and crash recovery.
package session

import (
	"context"
	"fmt"

	"github.com/quarryhq/quarry/internal/domain"
	"github.com/quarryhq/quarry/internal/frontier"
)

// Store is the session persistence the manager drives. Counter increments
// are not here: they ride inside the queue transitions that produce them.
type Store interface {
	Create(ctx context.Context, startURL string) (*domain.CrawlSession, error)
	GetByID(ctx context.Context, id string) (*domain.CrawlSession, error)
	List(ctx context.Context, limit, offset int) ([]*domain.CrawlSession, error)
	Finalize(ctx context.Context, id, status string) error
}

// Seeder admits a session's start URL into its queue.
type Seeder interface {
	EnqueueSeed(ctx context.Context, sessionID, rawURL string) (frontier.EnqueueResult, error)
	ResetStale(ctx context.Context, sessionID string) (int64, error)
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
}

// Manager creates, finalizes, and recovers crawl sessions.
type Manager struct {
	store  Store
	seeder Seeder
	log    Logger
}

// NewManager creates a session manager.
func NewManager(store Store, seeder Seeder, log Logger) *Manager {
	return &Manager{store: store, seeder: seeder, log: log}
}

// Start creates a running session and enqueues the start URL as its seed.
// The seed must be admitted as a fresh entry; when it is not, the just
// created session is finalized as failed rather than left running empty.
func (m *Manager) Start(ctx context.Context, startURL string) (*domain.CrawlSession, error) {
	sess, err := m.store.Create(ctx, startURL)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	result, seedErr := m.seeder.EnqueueSeed(ctx, sess.ID, startURL)
	if seedErr != nil {
		m.abortUnseeded(ctx, sess.ID)
		return nil, fmt.Errorf("seed session %s: %w", sess.ID, seedErr)
	}

	if result != frontier.EnqueueInserted {
		m.abortUnseeded(ctx, sess.ID)
		return nil, fmt.Errorf("seed session %s: start url not admitted (%s)", sess.ID, result)
	}

	m.log.Info("crawl session started", "session_id", sess.ID, "start_url", startURL)

	return sess, nil
}

// abortUnseeded finalizes a session whose seed never made it into the queue.
func (m *Manager) abortUnseeded(ctx context.Context, sessionID string) {
	if err := m.store.Finalize(ctx, sessionID, domain.SessionStatusFailed); err != nil {
		m.log.Warn("failed to finalize unseeded session",
			"session_id", sessionID,
			"error", err.Error(),
		)
	}
}

// Finalize transitions a session to a terminal status.
func (m *Manager) Finalize(ctx context.Context, sessionID, status string) error {
	if err := m.store.Finalize(ctx, sessionID, status); err != nil {
		return fmt.Errorf("finalize session %s: %w", sessionID, err)
	}

	m.log.Info("crawl session finalized", "session_id", sessionID, "status", status)

	return nil
}

// Recover prepares a previously interrupted session for resumption by
// returning its orphaned processing entries to pending. The session must
// still be running.
func (m *Manager) Recover(ctx context.Context, sessionID string) (*domain.CrawlSession, error) {
	sess, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("recover session: %w", err)
	}

	if sess.IsTerminal() {
		return nil, fmt.Errorf("recover session %s: already %s", sessionID, sess.Status)
	}

	reset, resetErr := m.seeder.ResetStale(ctx, sessionID)
	if resetErr != nil {
		return nil, fmt.Errorf("recover session %s: %w", sessionID, resetErr)
	}

	m.log.Info("crawl session recovered", "session_id", sessionID, "entries_reset", reset)

	return sess, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.CrawlSession, error) {
	return m.store.GetByID(ctx, sessionID)
}

// List returns sessions, newest first.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*domain.CrawlSession, error) {
	return m.store.List(ctx, limit, offset)
}
