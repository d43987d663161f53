// Package schema defines the canonical threat-intelligence record produced
// by the normalization pipeline. Extraction output is sanitized to this
// structure before persistence.
package schema

import (
	"time"
)

// Severity classifies the impact of a threat.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for rule comparisons. Unknown values rank
// below LOW so they never satisfy a minimum-severity condition.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity, 0 if unknown.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	return severityRank[s] != 0
}

// Threat is the normalized record extracted from raw page text.
type Threat struct {
	Title       string   `json:"title" validate:"required,max=512"`
	Description string   `json:"description"`
	ThreatType  string   `json:"threat_type" validate:"max=128"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"`

	Tactics    []string `json:"tactics,omitempty"`
	Techniques []string `json:"techniques,omitempty"`

	ThreatActors    []ThreatActor     `json:"threat_actors,omitempty"`
	Indicators      []ThreatIndicator `json:"indicators,omitempty"`
	AffectedSystems []AffectedSystem  `json:"affected_systems,omitempty"`

	Mitigations []string `json:"mitigations,omitempty"`
	References  []string `json:"references,omitempty"`

	SourceURL     string     `json:"source_url" validate:"max=2048"`
	DiscoveryDate *time.Time `json:"discovery_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ThreatActor describes an adversary associated with a threat.
type ThreatActor struct {
	Name          string   `json:"name" validate:"required,max=256"`
	Description   string   `json:"description,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	OriginCountry string   `json:"origin_country,omitempty" validate:"max=128"`
	Motivation    []string `json:"motivation,omitempty"`
}

// ThreatIndicator is a concrete artifact (IOC) tied to a threat.
type ThreatIndicator struct {
	Type        string  `json:"type" validate:"required,max=64"`
	Value       string  `json:"value" validate:"required,max=2048"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// AffectedSystem names a system impacted by a threat.
type AffectedSystem struct {
	Name    string `json:"name" validate:"required,max=256"`
	Type    string `json:"type,omitempty" validate:"max=64"`
	Version string `json:"version,omitempty" validate:"max=128"`
	Impact  string `json:"impact,omitempty"`
}

// FetchUnit is one URL of one crawl job, queued for a pipeline worker.
type FetchUnit struct {
	JobID       string    `json:"job_id"`
	URL         string    `json:"url"`
	Depth       int       `json:"depth"`
	ScraperMode string    `json:"scraper_mode"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// PageContent is a fetched page as reported by the fetch collaborator.
// The pipeline never fetches pages itself.
type PageContent struct {
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url,omitempty"`
	Title       string            `json:"title,omitempty"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
