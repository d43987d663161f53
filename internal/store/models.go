// Package store persists crawl jobs, pages, threats, alert rules and the
// knowledge graph in a relational datastore via GORM.
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a crawl job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// statusRank orders job states. Transitions must be monotonic: a job never
// moves to a state with a lower or equal terminal rank.
var statusRank = map[JobStatus]int{
	JobStatusPending:   0,
	JobStatusRunning:   1,
	JobStatusCompleted: 2,
	JobStatusError:     2,
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CrawlJob is one submitted crawl run.
type CrawlJob struct {
	ID           string    `gorm:"primaryKey;size:128"`
	URLs         []string  `gorm:"serializer:json"`
	Status       JobStatus `gorm:"size:16;index"`
	Cancelled    bool
	Depth        int
	MaxPages     int
	ScraperMode  string `gorm:"size:32"`
	ErrorMessage string `gorm:"type:text"`
	PagesCrawled int

	Pages []CrawledPage `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// BeforeCreate assigns an id when the client did not supply one.
func (j *CrawlJob) BeforeCreate(*gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// CrawledPage is one fetched page of one job. A job never stores the same
// URL twice; re-ingestion updates the stored content.
type CrawledPage struct {
	ID          uint   `gorm:"primaryKey"`
	JobID       string `gorm:"size:128;uniqueIndex:idx_page_job_url;not null"`
	URL         string `gorm:"size:2048;uniqueIndex:idx_page_job_url;not null"`
	FinalURL    string `gorm:"size:2048"`
	Title       string `gorm:"size:512"`
	Content     string `gorm:"type:text"`
	ContentType string `gorm:"size:128"`
	StatusCode  int

	Indicators []PageIndicator `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE"`

	FetchedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PageIndicator is a regex-derived indicator tied to the page it was seen on.
// (page_id, type, value) is unique; a re-match never lowers confidence.
type PageIndicator struct {
	ID         uint   `gorm:"primaryKey"`
	PageID     uint   `gorm:"uniqueIndex:idx_ind_page_type_value;not null"`
	Type       string `gorm:"size:32;uniqueIndex:idx_ind_page_type_value;not null"`
	Value      string `gorm:"size:2048;uniqueIndex:idx_ind_page_type_value;not null"`
	Confidence float64
	Context    string `gorm:"type:text"`
	CreatedAt  time.Time
}

// ThreatRecord is a persisted normalized threat with its sub-entities.
type ThreatRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	Title         string `gorm:"size:512;not null"`
	Description   string `gorm:"type:text"`
	ThreatType    string `gorm:"size:128;index"`
	Severity      string `gorm:"size:16;index"`
	Confidence    float64
	Tactics       []string `gorm:"serializer:json"`
	Techniques    []string `gorm:"serializer:json"`
	Mitigations   []string `gorm:"serializer:json"`
	References    []string `gorm:"serializer:json"`
	SourceURL     string   `gorm:"size:2048"`
	DiscoveryDate *time.Time

	Actors     []ThreatActorRow     `gorm:"foreignKey:ThreatID;constraint:OnDelete:CASCADE"`
	Indicators []ThreatIndicatorRow `gorm:"foreignKey:ThreatID;constraint:OnDelete:CASCADE"`
	Systems    []AffectedSystemRow  `gorm:"foreignKey:ThreatID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a record id.
func (t *ThreatRecord) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// ThreatActorRow is an actor attributed to a threat.
type ThreatActorRow struct {
	ID            uint     `gorm:"primaryKey"`
	ThreatID      string   `gorm:"size:36;index;not null"`
	Name          string   `gorm:"size:255;not null"`
	Description   string   `gorm:"type:text"`
	Aliases       []string `gorm:"serializer:json"`
	OriginCountry string   `gorm:"size:128"`
	Motivation    []string `gorm:"serializer:json"`
}

// ThreatIndicatorRow is an indicator attached to a threat record.
// (threat_id, type, value) is unique.
type ThreatIndicatorRow struct {
	ID          uint   `gorm:"primaryKey"`
	ThreatID    string `gorm:"size:36;uniqueIndex:idx_threat_ind;not null"`
	Type        string `gorm:"size:32;uniqueIndex:idx_threat_ind;not null"`
	Value       string `gorm:"size:2048;uniqueIndex:idx_threat_ind;not null"`
	Confidence  float64
	Description string `gorm:"type:text"`
}

// AffectedSystemRow is a system a threat is reported to affect.
type AffectedSystemRow struct {
	ID       uint   `gorm:"primaryKey"`
	ThreatID string `gorm:"size:36;index;not null"`
	Name     string `gorm:"size:255;not null"`
	Type     string `gorm:"size:128"`
	Version  string `gorm:"size:128"`
	Impact   string `gorm:"type:text"`
}

// AlertRule is a stored detection rule. Condition holds the type-specific
// JSON payload, validated at write time.
type AlertRule struct {
	ID        string   `gorm:"primaryKey;size:36"`
	Name      string   `gorm:"size:255;uniqueIndex;not null"`
	Type      string   `gorm:"size:32;not null"`
	Condition string   `gorm:"type:text;not null"`
	Channels  []string `gorm:"serializer:json"`
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a rule id.
func (r *AlertRule) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// AlertHistory is one triggered alert. Rows are immutable apart from the
// acknowledged flag, and snapshot the rule so later edits or deletion of the
// rule never rewrite history.
type AlertHistory struct {
	ID           string `gorm:"primaryKey;size:36"`
	RuleID       string `gorm:"size:36;index"`
	RuleName     string `gorm:"size:255"`
	RuleType     string `gorm:"size:32"`
	TriggeredAt  time.Time
	Severity     string `gorm:"size:16"`
	Summary      string `gorm:"size:1024"`
	Details      string `gorm:"type:text"`
	Acknowledged bool
}

// BeforeCreate assigns a history id and trigger time.
func (h *AlertHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.TriggeredAt.IsZero() {
		h.TriggeredAt = time.Now().UTC()
	}
	return nil
}

// GraphNode is a knowledge-graph entity. Identity is (node_type, node_key)
// where node_key is the lowercase-trimmed label, so "DragonForce" and
// "dragonforce" resolve to one node.
type GraphNode struct {
	ID        string `gorm:"primaryKey;size:36"`
	NodeType  string `gorm:"size:64;uniqueIndex:idx_node_type_key;not null"`
	NodeKey   string `gorm:"size:512;uniqueIndex:idx_node_type_key;not null"`
	Label     string `gorm:"size:512;not null"`
	CreatedAt time.Time
}

// BeforeCreate assigns a node id.
func (n *GraphNode) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// GraphEdge is a directed relationship between two nodes.
// (source_id, target_id, relationship_type) is unique.
type GraphEdge struct {
	ID               uint   `gorm:"primaryKey"`
	SourceID         string `gorm:"size:36;uniqueIndex:idx_edge_src_dst_rel;not null"`
	TargetID         string `gorm:"size:36;uniqueIndex:idx_edge_src_dst_rel;not null"`
	RelationshipType string `gorm:"size:64;uniqueIndex:idx_edge_src_dst_rel;not null"`
	Context          string `gorm:"type:text"`
	CreatedAt        time.Time

	Source GraphNode `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE"`
	Target GraphNode `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
}
