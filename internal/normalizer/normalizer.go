// Package normalizer turns raw page text into persisted threat records. The
// extraction collaborator is consulted first; when it fails the content is
// still captured as a degraded low-confidence record, never dropped.
package normalizer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"seer/internal/dedup"
	"seer/internal/extraction"
	"seer/internal/schema"
	"seer/internal/store"
)

// ErrDuplicateContent is returned when the content hash was already
// processed within the dedup window.
var ErrDuplicateContent = errors.New("normalizer: duplicate content within window")

// heuristicConfidence is assigned to records built without the collaborator.
const heuristicConfidence = 0.3

// maxHeuristicDescription bounds the raw-text excerpt kept on a degraded
// record.
const maxHeuristicDescription = 1000

// ThreatExtractor is the collaborator surface the normalizer needs.
type ThreatExtractor interface {
	ExtractThreat(ctx context.Context, content, sourceURL string) (*schema.Threat, error)
}

// ThreatStore persists normalized records.
type ThreatStore interface {
	CreateThreat(ctx context.Context, record *store.ThreatRecord) error
}

// Normalizer drives dedup, extraction, sanitization and persistence.
type Normalizer struct {
	extractor ThreatExtractor
	sanitizer *schema.Sanitizer
	threats   ThreatStore
	deduper   *dedup.Deduper
	logger    *slog.Logger
}

// New creates a normalizer. deduper may be nil to disable the window.
func New(extractor ThreatExtractor, threats ThreatStore, deduper *dedup.Deduper) *Normalizer {
	return &Normalizer{
		extractor: extractor,
		sanitizer: schema.NewSanitizer(),
		threats:   threats,
		deduper:   deduper,
		logger:    slog.Default().With("component", "normalizer"),
	}
}

// Normalize processes one page's text. It returns the persisted record, nil
// when the collaborator legitimately found no threat, or ErrDuplicateContent
// when the content was recently processed.
func (n *Normalizer) Normalize(ctx context.Context, rawText, sourceURL string) (*store.ThreatRecord, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, nil
	}

	if n.deduper != nil && n.deduper.AlreadySeen(ctx, sourceURL, rawText) {
		n.logger.Debug("skipping duplicate content", "source_url", sourceURL)
		return nil, ErrDuplicateContent
	}

	threat, err := n.extractor.ExtractThreat(ctx, rawText, sourceURL)
	switch {
	case err == nil:
		// Collaborator produced a candidate record.
	case errors.Is(err, extraction.ErrNoThreat):
		n.logger.Debug("no threat in content", "source_url", sourceURL)
		return nil, nil
	default:
		// Timeout, transport failure, malformed reply: degrade, keep the
		// content.
		n.logger.Warn("extraction failed, storing degraded record",
			"source_url", sourceURL, "error", err)
		threat = n.heuristicThreat(rawText, sourceURL)
	}

	if err := n.sanitizer.Sanitize(threat); err != nil {
		return nil, err
	}

	record := store.ThreatRecordFromSchema(threat)
	if err := n.threats.CreateThreat(ctx, record); err != nil {
		return nil, err
	}

	n.logger.Info("threat persisted",
		"threat_id", record.ID,
		"title", record.Title,
		"severity", record.Severity,
		"confidence", record.Confidence,
		"degraded", threat.Confidence == heuristicConfidence && len(threat.Indicators) == 0)
	return record, nil
}

// heuristicThreat builds the minimal record used when the collaborator is
// unavailable: title from the first content line or the URL, LOW severity,
// fixed low confidence.
func (n *Normalizer) heuristicThreat(rawText, sourceURL string) *schema.Threat {
	title := firstLine(rawText)
	if title == "" {
		title = sourceURL
	}
	title = truncate(title, 512)
	description := truncate(rawText, maxHeuristicDescription)

	return &schema.Threat{
		Title:       title,
		Description: description,
		Severity:    schema.SeverityLow,
		Confidence:  heuristicConfidence,
		SourceURL:   sourceURL,
	}
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
