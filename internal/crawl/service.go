package crawl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"seer/internal/archive"
	"seer/internal/config"
	"seer/internal/graph"
	"seer/internal/ioc"
	"seer/internal/normalizer"
	"seer/internal/queue"
	"seer/internal/rules"
	"seer/internal/schema"
	"seer/internal/store"
)

// ThreatNormalizer turns raw page text into a persisted threat record.
type ThreatNormalizer interface {
	Normalize(ctx context.Context, rawText, sourceURL string) (*store.ThreatRecord, error)
}

// AlertEvaluator runs a threat event through the alert rules.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, event rules.Event) (int, error)
}

// GraphUpserter merges a threat record into the knowledge graph.
type GraphUpserter interface {
	UpsertFromThreat(ctx context.Context, record *store.ThreatRecord) graph.Summary
}

// Service runs the crawl pipeline: it accepts job submissions, dispatches
// fetch units to a worker pool and drives each fetched page through
// ingestion, archival, normalization, alerting and graph upserts.
type Service struct {
	cfg        config.CrawlerConfig
	workers    config.WorkerConfig
	store      *store.Store
	queue      *queue.RingBuffer
	fetcher    Fetcher
	normalizer ThreatNormalizer
	engine     AlertEvaluator
	graph      GraphUpserter
	archiver   *archive.Archiver
	logger     *slog.Logger

	mu       sync.Mutex
	tracking map[string]*jobProgress

	wg   sync.WaitGroup
	done chan struct{}

	unitsProcessed atomic.Int64
	unitsFailed    atomic.Int64
	unitsSkipped   atomic.Int64
	threatsFound   atomic.Int64
}

// NewService wires the pipeline. The normalizer, engine, graph builder and
// archiver may be nil; the corresponding stage is then skipped.
func NewService(
	cfg config.CrawlerConfig,
	workers config.WorkerConfig,
	st *store.Store,
	q *queue.RingBuffer,
	fetcher Fetcher,
	norm ThreatNormalizer,
	engine AlertEvaluator,
	gb GraphUpserter,
	archiver *archive.Archiver,
) *Service {
	return &Service{
		cfg:        cfg,
		workers:    workers,
		store:      st,
		queue:      q,
		fetcher:    fetcher,
		normalizer: norm,
		engine:     engine,
		graph:      gb,
		archiver:   archiver,
		logger:     slog.Default().With("component", "crawl"),
		tracking:   make(map[string]*jobProgress),
		done:       make(chan struct{}),
	}
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) {
	count := s.workers.Count
	if count <= 0 {
		count = 1
	}
	s.logger.Info("starting crawl workers", "count", count)
	for i := 0; i < count; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals the workers and waits up to the configured shutdown window
// for in-flight units to finish.
func (s *Service) Stop() {
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	wait := s.workers.ShutdownWait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	select {
	case <-finished:
		s.logger.Info("crawl workers stopped")
	case <-time.After(wait):
		s.logger.Warn("crawl worker shutdown timed out", "waited", wait)
	}
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker_id", id)
	logger.Debug("worker started")

	poll := s.workers.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		select {
		case <-s.done:
			logger.Debug("worker stopping")
			return
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		default:
		}

		unit, err := s.queue.PopWithTimeout(poll)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				logger.Debug("queue closed, worker exiting")
				return
			}
			continue // empty, poll again
		}

		s.processUnit(ctx, logger, unit)

		if s.cfg.CrawlDelay > 0 {
			select {
			case <-s.done:
				return
			case <-time.After(s.cfg.CrawlDelay):
			}
		}
	}
}

// processUnit runs one fetch unit end to end. A unit failure is recorded
// against the job but never stops the worker; the job errors only when
// every unit of it failed.
func (s *Service) processUnit(ctx context.Context, logger *slog.Logger, unit *schema.FetchUnit) {
	logger = logger.With("job_id", unit.JobID, "url", unit.URL)

	cancelled, err := s.store.IsCancelled(ctx, unit.JobID)
	if err != nil {
		logger.Warn("failed to check job cancellation", "error", err)
	}
	if cancelled {
		s.unitsSkipped.Add(1)
		logger.Info("skipping unit of cancelled job")
		s.finishUnit(ctx, unit.JobID, false)
		return
	}

	// A job past its deadline is fatal: remaining units are dropped and the
	// job errors. SetJobError loses against an already-terminal state, so
	// the first timeout write wins.
	if s.jobExpired(unit.JobID) {
		s.unitsSkipped.Add(1)
		logger.Warn("dropping unit of timed-out job")
		if err := s.store.SetJobError(ctx, unit.JobID, "job timeout exceeded"); err != nil &&
			!errors.Is(err, store.ErrStatusRegression) {
			logger.Warn("failed to mark job timed out", "error", err)
		}
		s.finishUnit(ctx, unit.JobID, false)
		return
	}

	// First unit of the job moves it to running; later units are no-ops.
	if err := s.store.UpdateJobStatus(ctx, unit.JobID, store.JobStatusRunning); err != nil &&
		!errors.Is(err, store.ErrStatusRegression) {
		logger.Warn("failed to mark job running", "error", err)
	}

	page, err := s.fetchWithRetry(ctx, unit)
	if err != nil {
		s.unitsFailed.Add(1)
		logger.Warn("fetch unit failed", "error", err)
		s.finishUnit(ctx, unit.JobID, false)
		return
	}

	row := &store.CrawledPage{
		JobID:       unit.JobID,
		URL:         page.URL,
		FinalURL:    page.FinalURL,
		Title:       page.Title,
		Content:     page.Content,
		ContentType: page.ContentType,
		StatusCode:  page.StatusCode,
	}
	if err := s.store.UpsertPage(ctx, row); err != nil {
		s.unitsFailed.Add(1)
		logger.Error("failed to persist page", "error", err)
		s.finishUnit(ctx, unit.JobID, false)
		return
	}

	indicators := ioc.Extract(page.Content)
	if len(indicators) > 0 {
		rows := make([]store.PageIndicator, 0, len(indicators))
		for _, ind := range indicators {
			rows = append(rows, store.PageIndicator{
				PageID:     row.ID,
				Type:       ind.Type,
				Value:      ind.Value,
				Confidence: ind.Confidence,
				Context:    ind.Context,
			})
		}
		if err := s.store.UpsertIndicators(ctx, row.ID, rows); err != nil {
			logger.Warn("failed to persist page indicators", "error", err)
		}
	}

	if err := s.store.IncrementPagesCrawled(ctx, unit.JobID); err != nil {
		logger.Warn("failed to increment page counter", "error", err)
	}

	s.archiver.ArchivePage(ctx, unit.JobID, page)

	s.analyzePage(ctx, logger, page)

	s.unitsProcessed.Add(1)
	logger.Debug("fetch unit processed", "indicators", len(indicators))
	s.finishUnit(ctx, unit.JobID, true)
}

// analyzePage runs normalization and the downstream alert and graph stages.
// Failures here never fail the unit: the page is already ingested.
func (s *Service) analyzePage(ctx context.Context, logger *slog.Logger, page *schema.PageContent) {
	if s.normalizer == nil {
		return
	}

	record, err := s.normalizer.Normalize(ctx, page.Content, page.URL)
	if err != nil {
		if errors.Is(err, normalizer.ErrDuplicateContent) {
			logger.Debug("page content already analyzed within dedup window")
		} else {
			logger.Warn("threat normalization failed", "error", err)
		}
		return
	}
	if record == nil {
		return // no threat in this page
	}

	s.threatsFound.Add(1)
	logger.Info("threat recorded",
		"threat_id", record.ID, "title", record.Title, "severity", record.Severity)

	if s.engine != nil {
		matched, err := s.engine.Evaluate(ctx, rules.EventFromThreat(record))
		if err != nil {
			logger.Warn("alert evaluation failed", "threat_id", record.ID, "error", err)
		} else if matched > 0 {
			logger.Info("alert rules matched", "threat_id", record.ID, "matched", matched)
		}
	}

	if s.graph != nil {
		summary := s.graph.UpsertFromThreat(ctx, record)
		if summary.Errors > 0 {
			logger.Warn("graph upsert finished with errors",
				"threat_id", record.ID, "errors", summary.Errors)
		}
	}
}

// fetchWithRetry asks the fetch collaborator for the unit's page, retrying
// transient failures with doubling backoff.
func (s *Service) fetchWithRetry(ctx context.Context, unit *schema.FetchUnit) (*schema.PageContent, error) {
	attempts := s.cfg.FetchRetries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := s.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		fetchCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.FetchTimeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		}
		page, err := s.fetcher.Fetch(fetchCtx, unit.URL, unit.ScraperMode, unit.Depth)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return page, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		s.logger.Debug("fetch attempt failed, retrying",
			"url", unit.URL, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// ServiceMetrics reports pipeline counters for the metrics endpoint.
type ServiceMetrics struct {
	UnitsProcessed int64              `json:"units_processed"`
	UnitsFailed    int64              `json:"units_failed"`
	UnitsSkipped   int64              `json:"units_skipped"`
	ThreatsFound   int64              `json:"threats_found"`
	ActiveJobs     int                `json:"active_jobs"`
	Queue          queue.QueueMetrics `json:"queue"`
}

// Metrics returns current pipeline counters.
func (s *Service) Metrics() ServiceMetrics {
	return ServiceMetrics{
		UnitsProcessed: s.unitsProcessed.Load(),
		UnitsFailed:    s.unitsFailed.Load(),
		UnitsSkipped:   s.unitsSkipped.Load(),
		ThreatsFound:   s.threatsFound.Load(),
		ActiveJobs:     s.ActiveJobs(),
		Queue:          s.queue.Metrics(),
	}
}
