package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateJob inserts a new crawl job. A duplicate id maps to ErrJobExists.
func (s *Store) CreateJob(ctx context.Context, job *CrawlJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrJobExists
		}
		return fmt.Errorf("store: failed to create job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (*CrawlJob, error) {
	var job CrawlJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &job, nil
}

// ListJobs returns the most recently created jobs.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]CrawlJob, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []CrawlJob
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus moves a job forward in its lifecycle. Transitions are
// monotonic: a terminal job never changes status, and a running job never
// returns to pending. The transition is guarded in SQL so concurrent workers
// cannot race a job backwards.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status JobStatus) error {
	rank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("store: unknown job status %q", status)
	}

	var allowed []JobStatus
	for st, r := range statusRank {
		if r < rank {
			allowed = append(allowed, st)
		}
	}
	if len(allowed) == 0 {
		return ErrStatusRegression
	}

	updates := map[string]any{"status": status}
	now := time.Now().UTC()
	switch {
	case status == JobStatusRunning:
		updates["started_at"] = &now
	case status.Terminal():
		updates["completed_at"] = &now
	}

	res := s.db.WithContext(ctx).
		Model(&CrawlJob{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: failed to update job status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrStatusRegression
	}
	return nil
}

// SetJobError marks a job failed with a message. Ignored for jobs already
// terminal.
func (s *Store) SetJobError(ctx context.Context, id, message string) error {
	if err := s.UpdateJobStatus(ctx, id, JobStatusError); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&CrawlJob{}).
		Where("id = ?", id).
		Update("error_message", message).Error
}

// MarkCancelled sets the cancellation flag on a non-terminal job. Units
// already running finish; the flag stops new units from dispatching.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&CrawlJob{}).
		Where("id = ? AND status IN ?", id, []JobStatus{JobStatusPending, JobStatusRunning}).
		Update("cancelled", true)
	if res.Error != nil {
		return fmt.Errorf("store: failed to cancel job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrStatusRegression
	}
	return nil
}

// IsCancelled reports the cancellation flag for a job.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := s.db.WithContext(ctx).
		Model(&CrawlJob{}).
		Select("cancelled").
		Where("id = ?", id).
		Take(&cancelled).Error
	if err != nil {
		return false, translateNotFound(err)
	}
	return cancelled, nil
}

// IncrementPagesCrawled bumps the per-job progress counter.
func (s *Store) IncrementPagesCrawled(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Model(&CrawlJob{}).
		Where("id = ?", id).
		Update("pages_crawled", gorm.Expr("pages_crawled + 1")).Error
}
