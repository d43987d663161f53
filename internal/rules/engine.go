package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"seer/internal/notify"
	"seer/internal/schema"
	"seer/internal/store"
)

// Event is one normalized occurrence evaluated against the rule set. Threat
// events come from the normalizer after durable persistence; network events
// carry an opaque anomaly score.
type Event struct {
	ThreatID   string
	Title      string
	ThreatType string
	Severity   schema.Severity
	Confidence float64
	SourceURL  string

	// Indicator values attached to the event, matched by ioc_match rules.
	IndicatorValues []string

	// AnomalyScore is set only on network events.
	AnomalyScore *float64
}

// EventFromThreat builds an evaluation event from a persisted record.
func EventFromThreat(record *store.ThreatRecord) Event {
	ev := Event{
		ThreatID:   record.ID,
		Title:      record.Title,
		ThreatType: record.ThreatType,
		Severity:   schema.Severity(record.Severity),
		Confidence: record.Confidence,
		SourceURL:  record.SourceURL,
	}
	for _, ind := range record.Indicators {
		ev.IndicatorValues = append(ev.IndicatorValues, ind.Value)
	}
	return ev
}

// RuleStore is the persistence surface the engine needs.
type RuleStore interface {
	ListRules(ctx context.Context, enabledOnly bool) ([]store.AlertRule, error)
	CreateHistory(ctx context.Context, entry *store.AlertHistory) error
}

// Engine evaluates every enabled rule against incoming events.
type Engine struct {
	rules      RuleStore
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

// NewEngine creates a rule engine. dispatcher may be nil to disable
// notifications.
func NewEngine(rules RuleStore, dispatcher *notify.Dispatcher) *Engine {
	return &Engine{
		rules:      rules,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "rules"),
	}
}

// Evaluate runs the event through every enabled rule independently. Each
// match writes one history row and notifies the rule's channels once. A
// malformed rule is logged and skipped; it never stops the pass. Returns the
// number of matched rules.
func (e *Engine) Evaluate(ctx context.Context, event Event) (int, error) {
	enabled, err := e.rules.ListRules(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("rules: failed to load rule set: %w", err)
	}

	matched := 0
	for _, rule := range enabled {
		cond, err := ParseCondition(rule.Type, rule.Condition)
		if err != nil {
			e.logger.Warn("skipping malformed rule",
				"rule_id", rule.ID, "rule_name", rule.Name, "error", err)
			continue
		}

		hit, summary := evaluateCondition(cond, event)
		if !hit {
			continue
		}
		matched++

		entry := &store.AlertHistory{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			RuleType: rule.Type,
			Severity: string(event.Severity),
			Summary:  summary,
			Details:  eventDetails(event),
		}
		if err := e.rules.CreateHistory(ctx, entry); err != nil {
			e.logger.Error("failed to record alert",
				"rule_name", rule.Name, "error", err)
			continue
		}

		if e.dispatcher != nil {
			e.dispatcher.Dispatch(ctx, &notify.Alert{
				ID:          entry.ID,
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				RuleType:    rule.Type,
				Severity:    string(event.Severity),
				Summary:     summary,
				TriggeredAt: entry.TriggeredAt,
				Details: map[string]any{
					"threat_id":  event.ThreatID,
					"title":      event.Title,
					"source_url": event.SourceURL,
				},
			}, rule.Channels)
		}
	}
	return matched, nil
}

// evaluateCondition applies one decoded condition to an event.
func evaluateCondition(cond any, event Event) (bool, string) {
	switch c := cond.(type) {
	case *SeverityConfidenceCondition:
		minRank := schema.Severity(c.MinSeverity).Rank()
		if event.Severity.Rank() >= minRank && event.Confidence*100 >= c.MinConfidence {
			return true, fmt.Sprintf("%s threat at %.0f%% confidence: %s",
				event.Severity, event.Confidence*100, event.Title)
		}

	case *IOCMatchCondition:
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return false, ""
		}
		for _, value := range event.IndicatorValues {
			if re.MatchString(value) {
				return true, fmt.Sprintf("indicator %q matched pattern %q", value, c.Pattern)
			}
		}

	case *NetworkAnomalyCondition:
		if event.AnomalyScore != nil && *event.AnomalyScore >= c.MinScore {
			return true, fmt.Sprintf("anomaly score %.2f at or above %.2f",
				*event.AnomalyScore, c.MinScore)
		}

	case *SpecificThreatCondition:
		if event.ThreatType != "" && strings.EqualFold(event.ThreatType, c.ThreatType) {
			return true, fmt.Sprintf("threat type %q: %s", event.ThreatType, event.Title)
		}
	}
	return false, ""
}

func eventDetails(event Event) string {
	details, err := json.Marshal(map[string]any{
		"threat_id":  event.ThreatID,
		"title":      event.Title,
		"source_url": event.SourceURL,
		"confidence": event.Confidence,
	})
	if err != nil {
		return "{}"
	}
	return string(details)
}
