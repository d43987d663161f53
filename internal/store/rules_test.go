package store

import (
	"context"
	"errors"
	"testing"
)

func TestRuleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := &AlertRule{
		Name:      "critical threats",
		Type:      "severity_confidence",
		Condition: `{"min_severity":"CRITICAL","min_confidence":80}`,
		Channels:  []string{"webhook"},
		Enabled:   true,
	}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	// Names are unique.
	dup := &AlertRule{Name: "critical threats", Type: "ioc_match", Condition: `{"pattern":"x"}`}
	if err := s.CreateRule(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate name = %v, want ErrDuplicate", err)
	}

	rule.Condition = `{"min_severity":"HIGH","min_confidence":70}`
	rule.Enabled = false
	if err := s.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	got, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("enabled not persisted")
	}
	if got.Condition != rule.Condition {
		t.Errorf("condition = %q", got.Condition)
	}

	if err := s.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := s.GetRule(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRule after delete = %v, want ErrNotFound", err)
	}
}

func TestListRulesEnabledOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	on := &AlertRule{Name: "on", Type: "specific_threat", Condition: `{"threat_type":"ransomware"}`, Enabled: true}
	off := &AlertRule{Name: "off", Type: "specific_threat", Condition: `{"threat_type":"phishing"}`, Enabled: false}
	for _, r := range []*AlertRule{on, off} {
		if err := s.CreateRule(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	enabled, err := s.ListRules(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("enabled rules = %+v", enabled)
	}

	all, err := s.ListRules(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all rules = %d, want 2", len(all))
	}
}

func TestSetRuleEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := &AlertRule{Name: "toggle me", Type: "network_anomaly", Condition: `{"min_score":0.8}`, Enabled: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRuleEnabled(ctx, rule.ID, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	got, _ := s.GetRule(ctx, rule.ID)
	if got.Enabled {
		t.Error("rule still enabled")
	}

	if err := s.SetRuleEnabled(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("toggle missing = %v, want ErrNotFound", err)
	}
}

func TestHistorySnapshotSurvivesRuleDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := &AlertRule{Name: "doomed", Type: "ioc_match", Condition: `{"pattern":"192\\.168\\.1\\.100"}`, Enabled: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}

	entry := &AlertHistory{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		RuleType: rule.Type,
		Severity: "HIGH",
		Summary:  "ioc match on 192.168.1.100",
	}
	if err := s.CreateHistory(ctx, entry); err != nil {
		t.Fatalf("CreateHistory: %v", err)
	}

	if err := s.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("history = %d, want 1 surviving row", len(entries))
	}
	if entries[0].RuleName != "doomed" {
		t.Errorf("rule_name snapshot = %q", entries[0].RuleName)
	}
	if entries[0].TriggeredAt.IsZero() {
		t.Error("triggered_at not set")
	}
}

func TestAcknowledgeHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &AlertHistory{RuleName: "r", RuleType: "specific_threat", Summary: "s"}
	if err := s.CreateHistory(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := s.AcknowledgeHistory(ctx, entry.ID); err != nil {
		t.Fatalf("AcknowledgeHistory: %v", err)
	}

	entries, _ := s.ListHistory(ctx, 10)
	if !entries[0].Acknowledged {
		t.Error("acknowledged flag not set")
	}

	if err := s.AcknowledgeHistory(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ack missing = %v, want ErrNotFound", err)
	}
}
