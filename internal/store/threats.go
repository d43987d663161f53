package store

import (
	"context"
	"fmt"

	"seer/internal/schema"
)

// CreateThreat persists a threat record with its actors, indicators and
// affected systems atomically. GORM creates the associations inside one
// transaction, so a partial record is never visible.
func (s *Store) CreateThreat(ctx context.Context, record *ThreatRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: failed to create threat: %w", err)
	}
	return nil
}

// GetThreat returns one threat with its sub-entities.
func (s *Store) GetThreat(ctx context.Context, id string) (*ThreatRecord, error) {
	var record ThreatRecord
	err := s.db.WithContext(ctx).
		Preload("Actors").
		Preload("Indicators").
		Preload("Systems").
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

// ListThreats returns threats newest-first with their sub-entities.
func (s *Store) ListThreats(ctx context.Context, limit, offset int) ([]ThreatRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []ThreatRecord
	err := s.db.WithContext(ctx).
		Preload("Actors").
		Preload("Indicators").
		Preload("Systems").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: failed to list threats: %w", err)
	}
	return records, nil
}

// CountThreats returns the number of stored threats.
func (s *Store) CountThreats(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ThreatRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: failed to count threats: %w", err)
	}
	return n, nil
}

// ThreatRecordFromSchema converts a sanitized domain threat into its store
// representation.
func ThreatRecordFromSchema(t *schema.Threat) *ThreatRecord {
	record := &ThreatRecord{
		Title:       t.Title,
		Description: t.Description,
		ThreatType:  t.ThreatType,
		Severity:    string(t.Severity),
		Confidence:  t.Confidence,
		Tactics:     t.Tactics,
		Techniques:  t.Techniques,
		Mitigations: t.Mitigations,
		References:  t.References,
		SourceURL:   t.SourceURL,
	}
	if t.DiscoveryDate != nil {
		d := *t.DiscoveryDate
		record.DiscoveryDate = &d
	}
	for _, a := range t.ThreatActors {
		record.Actors = append(record.Actors, ThreatActorRow{
			Name:          a.Name,
			Description:   a.Description,
			Aliases:       a.Aliases,
			OriginCountry: a.OriginCountry,
			Motivation:    a.Motivation,
		})
	}
	for _, in := range t.Indicators {
		record.Indicators = append(record.Indicators, ThreatIndicatorRow{
			Type:        in.Type,
			Value:       in.Value,
			Confidence:  in.Confidence,
			Description: in.Description,
		})
	}
	for _, sys := range t.AffectedSystems {
		record.Systems = append(record.Systems, AffectedSystemRow{
			Name:    sys.Name,
			Type:    sys.Type,
			Version: sys.Version,
			Impact:  sys.Impact,
		})
	}
	return record
}
