package schema

import (
	"testing"
)

func TestSanitizeDefaultsInvalidSeverity(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		severity Severity
		want     Severity
	}{
		{"empty", "", SeverityMedium},
		{"garbage", "URGENT", SeverityMedium},
		{"lowercase valid", "critical", SeverityCritical},
		{"valid untouched", SeverityHigh, SeverityHigh},
		{"padded", "  low ", SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := &Threat{Title: "t", Severity: tt.severity}
			if err := s.Sanitize(th); err != nil {
				t.Fatalf("Sanitize: %v", err)
			}
			if th.Severity != tt.want {
				t.Errorf("severity = %q, want %q", th.Severity, tt.want)
			}
		})
	}
}

func TestSanitizeClampsConfidence(t *testing.T) {
	s := NewSanitizer()

	th := &Threat{
		Title:      "t",
		Severity:   SeverityLow,
		Confidence: 1.7,
		Indicators: []ThreatIndicator{
			{Type: "ip", Value: "10.0.0.1", Confidence: -0.2},
		},
	}
	if err := s.Sanitize(th); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if th.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", th.Confidence)
	}
	if got := th.Indicators[0].Confidence; got != 0 {
		t.Errorf("indicator confidence = %v, want 0", got)
	}
}

func TestSanitizeDefaultsNilSubLists(t *testing.T) {
	s := NewSanitizer()

	th := &Threat{Title: "t", Severity: SeverityLow}
	if err := s.Sanitize(th); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if th.Tactics == nil || th.ThreatActors == nil || th.Indicators == nil || th.AffectedSystems == nil {
		t.Error("sub-lists must default to empty, not nil")
	}
}

func TestSanitizeDedupesIndicators(t *testing.T) {
	s := NewSanitizer()

	th := &Threat{
		Title:    "t",
		Severity: SeverityLow,
		Indicators: []ThreatIndicator{
			{Type: "IP", Value: "10.0.0.1", Confidence: 0.5},
			{Type: "ip", Value: "10.0.0.1", Confidence: 0.9},
			{Type: "domain", Value: "evil.example", Confidence: 0.5},
			{Type: "", Value: "orphan"},
		},
	}
	if err := s.Sanitize(th); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if len(th.Indicators) != 2 {
		t.Fatalf("indicators = %d, want 2", len(th.Indicators))
	}
	if th.Indicators[0].Type != "ip" {
		t.Errorf("indicator type = %q, want normalized %q", th.Indicators[0].Type, "ip")
	}
}

func TestSanitizeTitleFallsBackToSourceURL(t *testing.T) {
	s := NewSanitizer()

	th := &Threat{SourceURL: "https://feed.example/post"}
	if err := s.Sanitize(th); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if th.Title != "https://feed.example/post" {
		t.Errorf("title = %q", th.Title)
	}

	if err := s.Sanitize(&Threat{}); err == nil {
		t.Error("expected error for record with no title and no source url")
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityCritical.Rank() <= SeverityHigh.Rank() {
		t.Error("CRITICAL must outrank HIGH")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity must rank 0")
	}
}
