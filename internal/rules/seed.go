package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"seer/internal/store"
)

// Seed is one alert rule as declared in a YAML seed file.
type Seed struct {
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Condition map[string]any `yaml:"condition"`
	Channels  []string       `yaml:"channels"`
	Enabled   *bool          `yaml:"enabled"`
}

type seedFile struct {
	Rules []Seed `yaml:"rules"`
}

// ParseSeeds decodes and validates a YAML seed document. Every rule in the
// document must be valid; a single bad rule fails the whole file.
func ParseSeeds(data []byte) ([]Seed, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rules: invalid seed YAML: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules: seed file declares no rules")
	}

	for i, seed := range file.Rules {
		if seed.Name == "" {
			return nil, fmt.Errorf("rules: rule %d has no name", i)
		}
		payload, err := seed.ConditionJSON()
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", seed.Name, err)
		}
		if err := ValidateCondition(seed.Type, payload); err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", seed.Name, err)
		}
	}
	return file.Rules, nil
}

// ConditionJSON renders the YAML condition map as the JSON payload rules are
// stored and evaluated with.
func (s Seed) ConditionJSON() (string, error) {
	raw, err := json.Marshal(s.Condition)
	if err != nil {
		return "", fmt.Errorf("condition is not serializable: %w", err)
	}
	return string(raw), nil
}

// ToRule converts a validated seed to a storable rule.
func (s Seed) ToRule() (*store.AlertRule, error) {
	payload, err := s.ConditionJSON()
	if err != nil {
		return nil, err
	}
	return &store.AlertRule{
		Name:      s.Name,
		Type:      s.Type,
		Condition: payload,
		Channels:  s.Channels,
		Enabled:   s.Enabled == nil || *s.Enabled,
	}, nil
}
