package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertPage stores a fetched page. Re-ingesting the same (job_id, url)
// updates the stored content instead of inserting a second row. The page id
// is populated on return.
func (s *Store) UpsertPage(ctx context.Context, page *CrawledPage) error {
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"final_url", "title", "content", "content_type", "status_code",
			"fetched_at", "updated_at",
		}),
	}).Create(page).Error
	if err != nil {
		return fmt.Errorf("store: failed to upsert page: %w", err)
	}

	// On a conflict some drivers do not report the surviving row id.
	if page.ID == 0 {
		var existing CrawledPage
		if err := s.db.WithContext(ctx).
			Select("id").
			First(&existing, "job_id = ? AND url = ?", page.JobID, page.URL).Error; err != nil {
			return translateNotFound(err)
		}
		page.ID = existing.ID
	}
	return nil
}

// UpsertIndicators stores page indicators. (page_id, type, value) is unique;
// on conflict the stored confidence is only ever raised, and the context of
// the first sighting is kept.
func (s *Store) UpsertIndicators(ctx context.Context, pageID uint, indicators []PageIndicator) error {
	if len(indicators) == 0 {
		return nil
	}

	for i := range indicators {
		indicators[i].ID = 0
		indicators[i].PageID = pageID
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "page_id"}, {Name: "type"}, {Name: "value"}},
		DoUpdates: clause.Assignments(map[string]any{
			"confidence": gorm.Expr(
				"CASE WHEN excluded.confidence > confidence THEN excluded.confidence ELSE confidence END"),
		}),
	}).Create(&indicators).Error
	if err != nil {
		return fmt.Errorf("store: failed to upsert indicators: %w", err)
	}
	return nil
}

// GetJobPages returns the pages of a job with their indicators.
func (s *Store) GetJobPages(ctx context.Context, jobID string) ([]CrawledPage, error) {
	var pages []CrawledPage
	if err := s.db.WithContext(ctx).
		Preload("Indicators").
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("store: failed to load job pages: %w", err)
	}
	return pages, nil
}

// CountJobPages returns the number of stored pages for a job.
func (s *Store) CountJobPages(ctx context.Context, jobID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&CrawledPage{}).
		Where("job_id = ?", jobID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: failed to count job pages: %w", err)
	}
	return n, nil
}
