package rules

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seer/internal/schema"
	"seer/internal/store"
)

type fakeRuleStore struct {
	rules   []store.AlertRule
	history []*store.AlertHistory
}

func (f *fakeRuleStore) ListRules(_ context.Context, enabledOnly bool) ([]store.AlertRule, error) {
	if !enabledOnly {
		return f.rules, nil
	}
	var out []store.AlertRule
	for _, r := range f.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) CreateHistory(_ context.Context, entry *store.AlertHistory) error {
	f.history = append(f.history, entry)
	return nil
}

func threatEvent(severity schema.Severity, confidence float64, threatType string, indicators ...string) Event {
	return Event{
		ThreatID:        "t-1",
		Title:           "test threat",
		ThreatType:      threatType,
		Severity:        severity,
		Confidence:      confidence,
		IndicatorValues: indicators,
	}
}

func TestSeverityConfidenceRule(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "high severity", Type: TypeSeverityConfidence,
		Condition: `{"min_severity":"HIGH","min_confidence":80}`,
		Enabled:   true,
	}}}
	e := NewEngine(st, nil)

	tests := []struct {
		name  string
		event Event
		want  int
	}{
		{"meets both", threatEvent(schema.SeverityCritical, 0.9, ""), 1},
		{"exactly at thresholds", threatEvent(schema.SeverityHigh, 0.8, ""), 1},
		{"severity too low", threatEvent(schema.SeverityMedium, 0.9, ""), 0},
		{"confidence too low", threatEvent(schema.SeverityCritical, 0.5, ""), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.history = nil
			matched, err := e.Evaluate(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if matched != tt.want {
				t.Errorf("matched = %d, want %d", matched, tt.want)
			}
			if len(st.history) != tt.want {
				t.Errorf("history rows = %d, want %d", len(st.history), tt.want)
			}
		})
	}
}

func TestIOCMatchRuleLiteralPattern(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "c2 address", Type: TypeIOCMatch,
		Condition: `{"pattern":"192\\.168\\.1\\.100"}`,
		Enabled:   true,
	}}}
	e := NewEngine(st, nil)

	matched, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityLow, 0.3, "", "192.168.1.100", "evil.example"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Errorf("matched = %d, want 1 for event carrying the indicator", matched)
	}

	matched, err = e.Evaluate(context.Background(),
		threatEvent(schema.SeverityLow, 0.3, "", "192.168.1.200"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Errorf("matched = %d, want 0 for event without the indicator", matched)
	}
}

func TestNetworkAnomalyRule(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "anomaly", Type: TypeNetworkAnomaly,
		Condition: `{"min_score":0.8}`,
		Enabled:   true,
	}}}
	e := NewEngine(st, nil)

	score := 0.9
	ev := Event{Title: "odd traffic", AnomalyScore: &score}
	matched, err := e.Evaluate(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Errorf("matched = %d, want 1", matched)
	}

	// A threat event with no anomaly score never matches.
	matched, err = e.Evaluate(context.Background(), threatEvent(schema.SeverityCritical, 1, "ransomware"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Errorf("matched = %d, want 0 without a score", matched)
	}
}

func TestSpecificThreatRuleCaseInsensitive(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "ransomware watch", Type: TypeSpecificThreat,
		Condition: `{"threat_type":"Ransomware"}`,
		Enabled:   true,
	}}}
	e := NewEngine(st, nil)

	matched, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityMedium, 0.5, "RANSOMWARE"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Errorf("matched = %d, want case-insensitive match", matched)
	}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "disabled", Type: TypeSpecificThreat,
		Condition: `{"threat_type":"ransomware"}`,
		Enabled:   false,
	}}}
	e := NewEngine(st, nil)

	matched, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityCritical, 1, "ransomware"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 || len(st.history) != 0 {
		t.Error("disabled rule produced an alert")
	}
}

// TestRuleCreatedDisabledStaysSilent runs against the real datastore: a rule
// written with Enabled false must come back disabled and never alert, even
// when the event matches its condition.
func TestRuleCreatedDisabledStaysSilent(t *testing.T) {
	db, err := gorm.Open(
		sqlite.Open("file:rules_disabled_silent?mode=memory&cache=shared&_foreign_keys=on"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	st, err := store.NewWithDB(db)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	rule := &store.AlertRule{
		Name:      "paused watch",
		Type:      TypeSpecificThreat,
		Condition: `{"threat_type":"ransomware"}`,
		Enabled:   false,
	}
	if err := st.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	stored, err := st.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if stored.Enabled {
		t.Fatal("rule created with Enabled false was stored enabled")
	}

	e := NewEngine(st, nil)
	matched, err := e.Evaluate(ctx, threatEvent(schema.SeverityCritical, 1, "ransomware"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if matched != 0 {
		t.Errorf("matched = %d, want 0 for a disabled rule", matched)
	}
	history, err := st.ListHistory(ctx, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history rows = %d, want none", len(history))
	}
}

func TestMalformedRuleSkippedNotFatal(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{
		{ID: "bad", Name: "broken", Type: TypeIOCMatch, Condition: `{"pattern":`, Enabled: true},
		{ID: "good", Name: "works", Type: TypeSpecificThreat,
			Condition: `{"threat_type":"phishing"}`, Enabled: true},
	}}
	e := NewEngine(st, nil)

	matched, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityLow, 0.3, "phishing"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if matched != 1 {
		t.Errorf("matched = %d, want the healthy rule to still fire", matched)
	}
	if len(st.history) != 1 || st.history[0].RuleName != "works" {
		t.Errorf("history = %+v", st.history)
	}
}

func TestEachMatchedRuleAlertsOnce(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{
		{ID: "r1", Name: "sev", Type: TypeSeverityConfidence,
			Condition: `{"min_severity":"LOW","min_confidence":0}`, Enabled: true},
		{ID: "r2", Name: "type", Type: TypeSpecificThreat,
			Condition: `{"threat_type":"malware"}`, Enabled: true},
	}}
	e := NewEngine(st, nil)

	matched, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityHigh, 0.9, "malware"))
	if err != nil {
		t.Fatal(err)
	}
	if matched != 2 || len(st.history) != 2 {
		t.Errorf("matched = %d history = %d, want 2/2", matched, len(st.history))
	}
}

func TestHistorySnapshotsRuleFields(t *testing.T) {
	st := &fakeRuleStore{rules: []store.AlertRule{{
		ID: "r1", Name: "snapshot me", Type: TypeSpecificThreat,
		Condition: `{"threat_type":"ransomware"}`, Enabled: true,
	}}}
	e := NewEngine(st, nil)

	if _, err := e.Evaluate(context.Background(),
		threatEvent(schema.SeverityHigh, 0.9, "ransomware")); err != nil {
		t.Fatal(err)
	}
	entry := st.history[0]
	if entry.RuleName != "snapshot me" || entry.RuleType != TypeSpecificThreat || entry.RuleID != "r1" {
		t.Errorf("snapshot = %+v", entry)
	}
}
