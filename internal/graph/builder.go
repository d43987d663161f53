// Package graph builds the knowledge graph from persisted threat records.
// Upserts converge: running the builder twice over the same data changes
// nothing, and individual failures are counted, not fatal.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"seer/internal/extraction"
	"seer/internal/store"
)

// Node types.
const (
	NodeThreat         = "threat"
	NodeThreatType     = "threat_type"
	NodeThreatActor    = "threat_actor"
	NodeIndicator      = "indicator"
	NodeAffectedSystem = "affected_system"
	NodeTactic         = "tactic"
	NodeTechnique      = "technique"
)

// Relationship types.
const (
	RelHasType       = "has_type"
	RelInvolvedIn    = "involved_in"
	RelIndicates     = "indicates"
	RelAffects       = "affects"
	RelUsesTactic    = "uses_tactic"
	RelUsesTechnique = "uses_technique"
)

// Summary reports one builder pass.
type Summary struct {
	NodesProcessed int `json:"nodes_processed"`
	EdgesAttempted int `json:"edges_attempted"`
	EdgesCreated   int `json:"edges_created"`
	Errors         int `json:"errors"`
}

func (s *Summary) add(other Summary) {
	s.NodesProcessed += other.NodesProcessed
	s.EdgesAttempted += other.EdgesAttempted
	s.EdgesCreated += other.EdgesCreated
	s.Errors += other.Errors
}

// GraphStore is the persistence surface the builder needs.
type GraphStore interface {
	GetOrCreateNode(ctx context.Context, nodeType, label string) (string, bool, error)
	CreateEdge(ctx context.Context, sourceID, targetID, relType, relContext string) (bool, error)
	ListThreats(ctx context.Context, limit, offset int) ([]store.ThreatRecord, error)
}

// Builder upserts threat records into the graph.
type Builder struct {
	store  GraphStore
	logger *slog.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(st GraphStore) *Builder {
	return &Builder{
		store:  st,
		logger: slog.Default().With("component", "graph"),
	}
}

// run tracks the node cache of one builder pass so a label is resolved at
// most once per pass.
type run struct {
	b       *Builder
	cache   map[string]string
	summary Summary
}

func (b *Builder) newRun() *run {
	return &run{b: b, cache: make(map[string]string)}
}

// node resolves a label to a node id through the per-pass cache. Empty
// labels resolve to "" without counting as an error.
func (r *run) node(ctx context.Context, nodeType, label string) string {
	if nodeType == "" || store.NodeKey(label) == "" {
		return ""
	}
	key := nodeType + "\x00" + store.NodeKey(label)
	if id, ok := r.cache[key]; ok {
		return id
	}

	id, _, err := r.b.store.GetOrCreateNode(ctx, nodeType, label)
	if err != nil {
		r.b.logger.Warn("graph node upsert failed",
			"node_type", nodeType, "label", label, "error", err)
		r.summary.Errors++
		return ""
	}
	r.summary.NodesProcessed++
	r.cache[key] = id
	return id
}

// edge attempts one relationship between two resolved nodes.
func (r *run) edge(ctx context.Context, sourceID, targetID, relType, relContext string) {
	if sourceID == "" || targetID == "" {
		return
	}
	r.summary.EdgesAttempted++
	created, err := r.b.store.CreateEdge(ctx, sourceID, targetID, relType, relContext)
	if err != nil {
		r.b.logger.Warn("graph edge upsert failed",
			"relationship", relType, "error", err)
		r.summary.Errors++
		return
	}
	if created {
		r.summary.EdgesCreated++
	}
}

// UpsertFromThreat merges one threat record into the graph.
func (b *Builder) UpsertFromThreat(ctx context.Context, record *store.ThreatRecord) Summary {
	r := b.newRun()
	r.upsertThreat(ctx, record)
	return r.summary
}

func (r *run) upsertThreat(ctx context.Context, record *store.ThreatRecord) {
	threatID := r.node(ctx, NodeThreat, record.Title)
	if threatID == "" {
		return
	}

	if typeID := r.node(ctx, NodeThreatType, record.ThreatType); typeID != "" {
		r.edge(ctx, threatID, typeID, RelHasType, "")
	}
	for _, actor := range record.Actors {
		if actorID := r.node(ctx, NodeThreatActor, actor.Name); actorID != "" {
			r.edge(ctx, actorID, threatID, RelInvolvedIn, "")
		}
	}
	for _, ind := range record.Indicators {
		if indID := r.node(ctx, NodeIndicator, ind.Value); indID != "" {
			r.edge(ctx, indID, threatID, RelIndicates, "")
		}
	}
	for _, sys := range record.Systems {
		if sysID := r.node(ctx, NodeAffectedSystem, sys.Name); sysID != "" {
			r.edge(ctx, threatID, sysID, RelAffects, "")
		}
	}
	for _, tactic := range record.Tactics {
		if tacticID := r.node(ctx, NodeTactic, tactic); tacticID != "" {
			r.edge(ctx, threatID, tacticID, RelUsesTactic, "")
		}
	}
	for _, technique := range record.Techniques {
		if techID := r.node(ctx, NodeTechnique, technique); techID != "" {
			r.edge(ctx, threatID, techID, RelUsesTechnique, "")
		}
	}
}

// RepopulateFromStore walks every stored threat and merges it into the
// graph. Safe to re-run: a second pass creates no new nodes or edges.
func (b *Builder) RepopulateFromStore(ctx context.Context) (Summary, error) {
	const pageSize = 200

	var total Summary
	r := b.newRun()
	for offset := 0; ; offset += pageSize {
		records, err := b.store.ListThreats(ctx, pageSize, offset)
		if err != nil {
			return total, fmt.Errorf("graph: failed to load threats: %w", err)
		}
		if len(records) == 0 {
			break
		}
		for i := range records {
			r.upsertThreat(ctx, &records[i])
		}
	}
	total.add(r.summary)

	b.logger.Info("graph repopulated",
		"nodes_processed", total.NodesProcessed,
		"edges_attempted", total.EdgesAttempted,
		"edges_created", total.EdgesCreated,
		"errors", total.Errors)
	return total, nil
}

// UpsertRelationships merges collaborator-extracted entity triples into the
// graph. Entity types map onto graph node types loosely; unrecognized ones
// keep their reported type lowercased.
func (b *Builder) UpsertRelationships(ctx context.Context, rels []extraction.Relationship) Summary {
	r := b.newRun()
	for _, rel := range rels {
		src := r.node(ctx, entityNodeType(rel.SourceEntity.Type), rel.SourceEntity.Value)
		dst := r.node(ctx, entityNodeType(rel.TargetEntity.Type), rel.TargetEntity.Value)
		relType := rel.RelationshipType
		if relType == "" {
			relType = "associated_with"
		}
		r.edge(ctx, src, dst, relType, rel.ContextSentence)
	}
	return r.summary
}

// entityNodeType maps collaborator entity types onto graph node types.
func entityNodeType(entityType string) string {
	switch entityType {
	case "ThreatActor":
		return NodeThreatActor
	case "Indicator":
		return NodeIndicator
	case "Malware", "Vulnerability", "Tool":
		return NodeThreat
	case "Target":
		return NodeAffectedSystem
	case "TTP":
		return NodeTechnique
	default:
		return store.NodeKey(entityType)
	}
}
