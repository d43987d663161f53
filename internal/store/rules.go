package store

import (
	"context"
	"fmt"
)

// CreateRule inserts an alert rule. Names are unique.
func (s *Store) CreateRule(ctx context.Context, rule *AlertRule) error {
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: failed to create rule: %w", err)
	}
	return nil
}

// GetRule returns the rule with the given id.
func (s *Store) GetRule(ctx context.Context, id string) (*AlertRule, error) {
	var rule AlertRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &rule, nil
}

// ListRules returns rules, optionally only enabled ones.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]AlertRule, error) {
	var rules []AlertRule
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("store: failed to list rules: %w", err)
	}
	return rules, nil
}

// UpdateRule rewrites the mutable fields of a rule.
func (s *Store) UpdateRule(ctx context.Context, rule *AlertRule) error {
	res := s.db.WithContext(ctx).
		Model(&AlertRule{ID: rule.ID}).
		Select("name", "type", "condition", "channels", "enabled").
		Updates(rule)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: failed to update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule. Alert history rows keep their snapshot and are
// never touched.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&AlertRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("store: failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRuleEnabled flips the enabled flag and returns the new value.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	res := s.db.WithContext(ctx).
		Model(&AlertRule{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("store: failed to toggle rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateHistory appends a triggered-alert row.
func (s *Store) CreateHistory(ctx context.Context, entry *AlertHistory) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: failed to record alert: %w", err)
	}
	return nil
}

// ListHistory returns triggered alerts newest-first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]AlertHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []AlertHistory
	if err := s.db.WithContext(ctx).
		Order("triggered_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: failed to list alert history: %w", err)
	}
	return entries, nil
}

// AcknowledgeHistory marks one alert acknowledged. The only mutation history
// rows admit.
func (s *Store) AcknowledgeHistory(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&AlertHistory{}).
		Where("id = ?", id).
		Update("acknowledged", true)
	if res.Error != nil {
		return fmt.Errorf("store: failed to acknowledge alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountHistory returns the number of history rows.
func (s *Store) CountHistory(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&AlertHistory{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: failed to count alert history: %w", err)
	}
	return n, nil
}
