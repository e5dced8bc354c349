// Package common provides shared dependency construction for CLI commands.
package common

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/database"
	"github.com/quarryhq/quarry/internal/dedup"
	"github.com/quarryhq/quarry/internal/extract"
	"github.com/quarryhq/quarry/internal/fetch"
	"github.com/quarryhq/quarry/internal/frontier"
	"github.com/quarryhq/quarry/internal/logger"
	"github.com/quarryhq/quarry/internal/policy"
	"github.com/quarryhq/quarry/internal/scheduler"
	"github.com/quarryhq/quarry/internal/session"
)

// CfgFile is the config file path from the root --config flag. Empty means
// defaults plus environment variables.
var CfgFile string

// CommandDeps holds the dependencies shared by all commands.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Interface
	DB     *sqlx.DB
}

// NewCommandDeps loads configuration, builds the logger, and opens the
// database connection. Callers own closing the DB.
func NewCommandDeps() (*CommandDeps, error) {
	cfg, err := config.Load(CfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.DatabaseConnection())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &CommandDeps{Config: cfg, Logger: log, DB: db}, nil
}

// Close releases held resources.
func (d *CommandDeps) Close() error {
	return d.DB.Close()
}

// Engine bundles the crawl engine's entry points.
type Engine struct {
	Sessions  *session.Manager
	Scheduler *scheduler.Scheduler
}

// BuildEngine wires repositories, policy store, frontier, and scheduler into
// a runnable crawl engine.
func BuildEngine(deps *CommandDeps) *Engine {
	cfg := deps.Config
	log := deps.Logger

	sessionRepo := database.NewSessionRepository(deps.DB)
	pageRepo := database.NewPageRepository(deps.DB)
	linkRepo := database.NewLinkRepository(deps.DB)
	domainRepo := database.NewDomainRepository(deps.DB)
	queueRepo := database.NewQueueRepository(deps.DB)

	index := dedup.NewIndex(pageRepo)

	robotsFetcher := policy.NewHTTPRobotsFetcher(
		&http.Client{Timeout: cfg.Crawler.RequestTimeout},
		cfg.Crawler.UserAgent,
	)
	policyStore := policy.NewStore(domainRepo, robotsFetcher, log, policy.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		RobotsTTL:         cfg.Crawler.RobotsTTL,
		DefaultCrawlDelay: secondsToDuration(cfg.Crawler.CrawlDelay),
	})

	front := frontier.New(queueRepo, index, policyStore, log, frontier.Config{
		MaxRetries:       cfg.Crawler.MaxRetries,
		BaseBackoff:      cfg.Crawler.BaseBackoff,
		BatchSize:        cfg.Crawler.DispatchBatchSize,
		RecrawlCompleted: cfg.Crawler.RecrawlCompleted,
	})

	sessions := session.NewManager(sessionRepo, front, log)

	fetcher := fetch.NewHTTPFetcher(cfg.Crawler.RequestTimeout, cfg.Crawler.UserAgent)
	extractor := extract.NewHTMLExtractor(extract.NewLinguaDetector())

	sched := scheduler.New(
		front, index, policyStore, linkRepo, sessions,
		fetcher, extractor, log,
		scheduler.Config{Workers: cfg.Crawler.Workers},
	)

	return &Engine{Sessions: sessions, Scheduler: sched}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
