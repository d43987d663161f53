package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"seer/internal/schema"
	"seer/internal/store"
)

var (
	// ErrInvalidRequest indicates a submission with no usable URLs.
	ErrInvalidRequest = errors.New("crawl: invalid job request")

	// ErrJobActive indicates the supplied job id is already in flight.
	ErrJobActive = errors.New("crawl: job id already active")
)

// SubmitRequest describes one crawl job submission.
type SubmitRequest struct {
	JobID       string   `json:"job_id,omitempty"`
	URLs        []string `json:"urls" validate:"required,min=1"`
	Depth       int      `json:"depth,omitempty"`
	MaxPages    int      `json:"max_pages,omitempty"`
	ScraperMode string   `json:"scraper_mode,omitempty"`
}

// jobProgress tracks in-flight fetch units of one job.
type jobProgress struct {
	remaining int
	succeeded int
	deadline  time.Time // zero when the job carries no timeout
}

// SubmitJob validates a request, persists the job and enqueues its fetch
// units. A client-supplied id that is still in flight is rejected; a
// terminal id starts a fresh run under a derived id (<id>-r2, -r3, ...).
func (s *Service) SubmitJob(ctx context.Context, req SubmitRequest) (string, error) {
	urls := validURLs(req.URLs)
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: no valid http(s) URLs", ErrInvalidRequest)
	}

	depth := req.Depth
	if depth <= 0 || depth > s.cfg.MaxDepth {
		depth = s.cfg.MaxDepth
	}
	maxPages := req.MaxPages
	if maxPages <= 0 || maxPages > s.cfg.MaxPagesPerJob {
		maxPages = s.cfg.MaxPagesPerJob
	}

	jobID, err := s.resolveJobID(ctx, req.JobID)
	if err != nil {
		return "", err
	}

	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}

	job := &store.CrawlJob{
		ID:          jobID,
		URLs:        urls,
		Depth:       depth,
		MaxPages:    maxPages,
		ScraperMode: req.ScraperMode,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrJobExists) {
			return "", ErrJobActive
		}
		return "", err
	}

	enqueued := 0
	now := time.Now().UTC()
	for _, u := range urls {
		unit := &schema.FetchUnit{
			JobID:       job.ID,
			URL:         u,
			Depth:       depth,
			ScraperMode: req.ScraperMode,
			EnqueuedAt:  now,
		}
		if err := s.queue.Push(unit); err != nil {
			s.logger.Warn("failed to enqueue fetch unit",
				"job_id", job.ID, "url", u, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued == 0 {
		_ = s.store.SetJobError(ctx, job.ID, "queue rejected every fetch unit")
		return job.ID, fmt.Errorf("crawl: queue rejected every fetch unit of job %s", job.ID)
	}

	progress := &jobProgress{remaining: enqueued}
	if s.cfg.JobTimeout > 0 {
		progress.deadline = now.Add(s.cfg.JobTimeout)
	}
	s.mu.Lock()
	s.tracking[job.ID] = progress
	s.mu.Unlock()

	s.logger.Info("job submitted",
		"job_id", job.ID, "urls", len(urls), "enqueued", enqueued, "depth", depth)
	return job.ID, nil
}

// resolveJobID applies the rerun policy for client-supplied ids.
func (s *Service) resolveJobID(ctx context.Context, requested string) (string, error) {
	if requested == "" {
		return "", nil // store assigns a UUID
	}

	existing, err := s.store.GetJob(ctx, requested)
	if errors.Is(err, store.ErrNotFound) {
		return requested, nil
	}
	if err != nil {
		return "", err
	}
	if !existing.Status.Terminal() {
		return "", ErrJobActive
	}

	// Terminal run under this id: start a new run under a derived id.
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-r%d", requested, n)
		prior, err := s.store.GetJob(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		if !prior.Status.Terminal() {
			return "", ErrJobActive
		}
	}
}

func validURLs(raw []string) []string {
	var out []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// GetStatus returns the job row.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*store.CrawlJob, error) {
	return s.store.GetJob(ctx, jobID)
}

// GetResults returns the job with its pages and indicators. Partial results
// of a running or failed job are valid output.
func (s *Service) GetResults(ctx context.Context, jobID string) (*store.CrawlJob, []store.CrawledPage, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	pages, err := s.store.GetJobPages(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, pages, nil
}

// Cancel flags a job so no further units are dispatched. Units already
// running finish normally.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	return s.store.MarkCancelled(ctx, jobID)
}

// finishUnit records one terminal fetch unit and closes the job when its
// last unit lands. A job errors only when zero units succeeded.
func (s *Service) finishUnit(ctx context.Context, jobID string, success bool) {
	s.mu.Lock()
	progress, ok := s.tracking[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if success {
		progress.succeeded++
	}
	progress.remaining--
	done := progress.remaining <= 0
	succeeded := progress.succeeded
	if done {
		delete(s.tracking, jobID)
	}
	s.mu.Unlock()

	if !done {
		return
	}

	if succeeded > 0 {
		if err := s.store.UpdateJobStatus(ctx, jobID, store.JobStatusCompleted); err != nil &&
			!errors.Is(err, store.ErrStatusRegression) {
			s.logger.Error("failed to complete job", "job_id", jobID, "error", err)
		}
		s.logger.Info("job completed", "job_id", jobID, "pages_succeeded", succeeded)
		return
	}

	if err := s.store.SetJobError(ctx, jobID, "no fetch unit succeeded"); err != nil &&
		!errors.Is(err, store.ErrStatusRegression) {
		s.logger.Error("failed to mark job errored", "job_id", jobID, "error", err)
	}
	s.logger.Warn("job failed, no fetch unit succeeded", "job_id", jobID)
}

// jobExpired reports whether the job's deadline has passed.
func (s *Service) jobExpired(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress, ok := s.tracking[jobID]
	if !ok || progress.deadline.IsZero() {
		return false
	}
	return time.Now().After(progress.deadline)
}

// ActiveJobs returns the number of jobs with in-flight units.
func (s *Service) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracking)
}
