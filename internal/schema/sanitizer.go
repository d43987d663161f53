package schema

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Sanitizer validates and repairs candidate threat records before they reach
// the store. Extraction output is untrusted: fields may be missing, out of
// range, or carry nil sub-lists. The sanitizer never rejects a record it can
// repair with a conservative default.
type Sanitizer struct {
	validate *validator.Validate
}

// NewSanitizer creates a Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{validate: validator.New()}
}

// Sanitize repairs the candidate in place and returns an error only when the
// record is structurally unusable (empty title with no source URL to derive
// one from).
func (s *Sanitizer) Sanitize(t *Threat) error {
	if t == nil {
		return fmt.Errorf("nil threat record")
	}

	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		if t.SourceURL == "" {
			return fmt.Errorf("threat record has no title and no source url")
		}
		t.Title = t.SourceURL
	}

	sev := Severity(strings.ToUpper(strings.TrimSpace(string(t.Severity))))
	if !sev.Valid() {
		slog.Warn("invalid severity on candidate record, defaulting to MEDIUM",
			"severity", t.Severity,
			"source_url", t.SourceURL,
		)
		sev = SeverityMedium
	}
	t.Severity = sev

	t.Confidence = ClampConfidence(t.Confidence)

	if t.Tactics == nil {
		t.Tactics = []string{}
	}
	if t.Techniques == nil {
		t.Techniques = []string{}
	}
	if t.Mitigations == nil {
		t.Mitigations = []string{}
	}
	if t.References == nil {
		t.References = []string{}
	}
	if t.ThreatActors == nil {
		t.ThreatActors = []ThreatActor{}
	}
	if t.AffectedSystems == nil {
		t.AffectedSystems = []AffectedSystem{}
	}

	t.Indicators = sanitizeIndicators(t.Indicators)
	t.ThreatActors = dropNamelessActors(t.ThreatActors)
	t.AffectedSystems = dropNamelessSystems(t.AffectedSystems)

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if err := s.validate.Struct(t); err != nil {
		return fmt.Errorf("threat record validation failed: %w", err)
	}
	return nil
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func sanitizeIndicators(in []ThreatIndicator) []ThreatIndicator {
	out := make([]ThreatIndicator, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, ind := range in {
		ind.Type = strings.ToLower(strings.TrimSpace(ind.Type))
		ind.Value = strings.TrimSpace(ind.Value)
		if ind.Type == "" || ind.Value == "" {
			continue
		}
		key := ind.Type + "\x00" + ind.Value
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ind.Confidence = ClampConfidence(ind.Confidence)
		out = append(out, ind)
	}
	return out
}

func dropNamelessActors(in []ThreatActor) []ThreatActor {
	out := make([]ThreatActor, 0, len(in))
	for _, a := range in {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func dropNamelessSystems(in []AffectedSystem) []AffectedSystem {
	out := make([]AffectedSystem, 0, len(in))
	for _, a := range in {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}
