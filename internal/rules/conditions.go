// Package rules evaluates alert rules against normalized threat events.
// Each rule type carries its own typed condition payload; payloads are
// validated when a rule is written, and a payload that is malformed at
// evaluation time skips that rule without stopping the pass.
package rules

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Rule type discriminators.
const (
	TypeSeverityConfidence = "severity_confidence"
	TypeIOCMatch           = "ioc_match"
	TypeNetworkAnomaly     = "network_anomaly"
	TypeSpecificThreat     = "specific_threat"
)

// KnownTypes lists every supported rule type.
var KnownTypes = []string{
	TypeSeverityConfidence,
	TypeIOCMatch,
	TypeNetworkAnomaly,
	TypeSpecificThreat,
}

// SeverityConfidenceCondition fires when a threat reaches a minimum severity
// and a minimum confidence, expressed as a percentage.
type SeverityConfidenceCondition struct {
	MinSeverity   string  `json:"min_severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=100"`
}

// IOCMatchCondition fires when any indicator value matches the pattern. The
// pattern is a regular expression; a plain literal is a valid regex and
// matches itself.
type IOCMatchCondition struct {
	Pattern string `json:"pattern" validate:"required"`
}

// NetworkAnomalyCondition fires when an event carries an anomaly score at or
// above the threshold.
type NetworkAnomalyCondition struct {
	MinScore float64 `json:"min_score" validate:"gte=0,lte=1"`
}

// SpecificThreatCondition fires on a case-insensitive threat-type match.
type SpecificThreatCondition struct {
	ThreatType string `json:"threat_type" validate:"required"`
}

var validate = validator.New()

// ParseCondition decodes and validates a condition payload for the given
// rule type.
func ParseCondition(ruleType, payload string) (any, error) {
	var cond any
	switch ruleType {
	case TypeSeverityConfidence:
		cond = &SeverityConfidenceCondition{}
	case TypeIOCMatch:
		cond = &IOCMatchCondition{}
	case TypeNetworkAnomaly:
		cond = &NetworkAnomalyCondition{}
	case TypeSpecificThreat:
		cond = &SpecificThreatCondition{}
	default:
		return nil, fmt.Errorf("rules: unknown rule type %q", ruleType)
	}

	if err := json.Unmarshal([]byte(payload), cond); err != nil {
		return nil, fmt.Errorf("rules: invalid condition payload: %w", err)
	}
	if err := validate.Struct(cond); err != nil {
		return nil, fmt.Errorf("rules: condition failed validation: %w", err)
	}

	if ioc, ok := cond.(*IOCMatchCondition); ok {
		if _, err := regexp.Compile(ioc.Pattern); err != nil {
			return nil, fmt.Errorf("rules: invalid ioc pattern: %w", err)
		}
	}
	return cond, nil
}

// ValidateCondition checks a payload without keeping the decoded form. Used
// at rule write time by the API and the seer-rules CLI.
func ValidateCondition(ruleType, payload string) error {
	_, err := ParseCondition(ruleType, payload)
	return err
}
