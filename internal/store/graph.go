package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// NodeKey canonicalizes a node label for identity matching. "DragonForce"
// and " dragonforce " resolve to the same node.
func NodeKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// GetOrCreateNode upserts a graph node by (node_type, key) and returns the
// surviving row id. The label of the first sighting is kept.
func (s *Store) GetOrCreateNode(ctx context.Context, nodeType, label string) (string, bool, error) {
	key := NodeKey(label)
	if key == "" {
		return "", false, fmt.Errorf("store: empty graph node label")
	}

	node := GraphNode{
		NodeType: nodeType,
		NodeKey:  key,
		Label:    strings.TrimSpace(label),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_type"}, {Name: "node_key"}},
		DoNothing: true,
	}).Create(&node)
	if res.Error != nil {
		return "", false, fmt.Errorf("store: failed to upsert graph node: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return node.ID, true, nil
	}

	var existing GraphNode
	if err := s.db.WithContext(ctx).
		Select("id").
		First(&existing, "node_type = ? AND node_key = ?", nodeType, key).Error; err != nil {
		return "", false, translateNotFound(err)
	}
	return existing.ID, false, nil
}

// CreateEdge inserts a directed relationship. An edge that already exists is
// a success with created=false, not an error.
func (s *Store) CreateEdge(ctx context.Context, sourceID, targetID, relType, relContext string) (bool, error) {
	edge := GraphEdge{
		SourceID:         sourceID,
		TargetID:         targetID,
		RelationshipType: relType,
		Context:          relContext,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "relationship_type"}},
		DoNothing: true,
	}).Create(&edge)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("store: failed to create graph edge: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GraphData returns every node and edge.
func (s *Store) GraphData(ctx context.Context) ([]GraphNode, []GraphEdge, error) {
	var nodes []GraphNode
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&nodes).Error; err != nil {
		return nil, nil, fmt.Errorf("store: failed to load graph nodes: %w", err)
	}
	var edges []GraphEdge
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&edges).Error; err != nil {
		return nil, nil, fmt.Errorf("store: failed to load graph edges: %w", err)
	}
	return nodes, edges, nil
}

// CountGraph returns node and edge totals.
func (s *Store) CountGraph(ctx context.Context) (nodes, edges int64, err error) {
	if err = s.db.WithContext(ctx).Model(&GraphNode{}).Count(&nodes).Error; err != nil {
		return 0, 0, fmt.Errorf("store: failed to count graph nodes: %w", err)
	}
	if err = s.db.WithContext(ctx).Model(&GraphEdge{}).Count(&edges).Error; err != nil {
		return 0, 0, fmt.Errorf("store: failed to count graph edges: %w", err)
	}
	return nodes, edges, nil
}
