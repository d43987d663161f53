package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"seer/internal/extraction"
)

type graphNodeResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type graphLinkResponse struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// handleGraphData handles GET /graph/data.
func (s *Server) handleGraphData(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := s.store.GraphData(r.Context())
	if err != nil {
		s.logger.Error("failed to load graph", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load graph")
		return
	}

	outNodes := make([]graphNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		outNodes = append(outNodes, graphNodeResponse{
			ID:    n.ID,
			Label: n.Label,
			Type:  n.NodeType,
		})
	}
	outLinks := make([]graphLinkResponse, 0, len(edges))
	for _, e := range edges {
		outLinks = append(outLinks, graphLinkResponse{
			Source:  e.SourceID,
			Target:  e.TargetID,
			Type:    e.RelationshipType,
			Context: e.Context,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"nodes": outNodes,
		"links": outLinks,
	})
}

// handleGraphPopulate handles POST /graph/populate. Rebuilding the graph from
// every stored threat can take a while, so the work runs in the background
// and the request returns 202 immediately.
func (s *Server) handleGraphPopulate(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		respondError(w, http.StatusServiceUnavailable, "graph builder not configured")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		summary, err := s.graph.RepopulateFromStore(ctx)
		if err != nil {
			s.logger.Error("graph repopulation failed", "error", err)
			return
		}
		s.logger.Info("graph repopulated",
			"nodes_processed", summary.NodesProcessed,
			"edges_created", summary.EdgesCreated,
			"errors", summary.Errors)
	}()

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
	})
}

type analyzeTextRequest struct {
	Text string `json:"text"`
}

type relationshipResponse struct {
	SourceEntity    entityResponse `json:"source_entity"`
	Relationship    string         `json:"relationship_type"`
	TargetEntity    entityResponse `json:"target_entity"`
	ContextSentence string         `json:"context_sentence,omitempty"`
}

type entityResponse struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// handleAnalyzeText handles POST /analyze_text_for_relationships. Extracted
// relationships are merged into the knowledge graph before responding.
func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil || !s.extractor.Configured() {
		respondError(w, http.StatusServiceUnavailable, "text analysis requires a configured extraction collaborator")
		return
	}

	var req analyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	rels, err := s.extractor.ExtractRelationships(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, extraction.ErrMalformedResponse) {
			respondError(w, http.StatusBadGateway, "extraction collaborator returned an unusable reply")
			return
		}
		s.logger.Error("relationship extraction failed", "error", err)
		respondError(w, http.StatusBadGateway, "relationship extraction failed")
		return
	}

	out := make([]relationshipResponse, 0, len(rels))
	for _, rel := range rels {
		out = append(out, relationshipResponse{
			SourceEntity:    entityResponse{Type: rel.SourceEntity.Type, Value: rel.SourceEntity.Value},
			Relationship:    rel.RelationshipType,
			TargetEntity:    entityResponse{Type: rel.TargetEntity.Type, Value: rel.TargetEntity.Value},
			ContextSentence: rel.ContextSentence,
		})
	}

	resp := map[string]any{
		"relationships": out,
	}
	if s.graph != nil && len(rels) > 0 {
		summary := s.graph.UpsertRelationships(r.Context(), rels)
		resp["graph"] = map[string]any{
			"nodes_processed": summary.NodesProcessed,
			"edges_created":   summary.EdgesCreated,
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
