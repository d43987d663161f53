package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"seer/internal/store"
)

type threatActorResponse struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	OriginCountry string   `json:"origin_country,omitempty"`
	Motivation    []string `json:"motivation,omitempty"`
}

type threatIndicatorResponse struct {
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

type affectedSystemResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
	Impact  string `json:"impact,omitempty"`
}

type threatResponse struct {
	ID              string                    `json:"id"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	ThreatType      string                    `json:"threat_type,omitempty"`
	Severity        string                    `json:"severity"`
	Confidence      float64                   `json:"confidence"`
	Tactics         []string                  `json:"tactics,omitempty"`
	Techniques      []string                  `json:"techniques,omitempty"`
	Actors          []threatActorResponse     `json:"threat_actors,omitempty"`
	Indicators      []threatIndicatorResponse `json:"indicators,omitempty"`
	AffectedSystems []affectedSystemResponse  `json:"affected_systems,omitempty"`
	Mitigations     []string                  `json:"mitigations,omitempty"`
	References      []string                  `json:"references,omitempty"`
	SourceURL       string                    `json:"source_url,omitempty"`
	DiscoveryDate   *time.Time                `json:"discovery_date,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func toThreatResponse(record *store.ThreatRecord) threatResponse {
	out := threatResponse{
		ID:            record.ID,
		Title:         record.Title,
		Description:   record.Description,
		ThreatType:    record.ThreatType,
		Severity:      record.Severity,
		Confidence:    record.Confidence,
		Tactics:       record.Tactics,
		Techniques:    record.Techniques,
		Mitigations:   record.Mitigations,
		References:    record.References,
		SourceURL:     record.SourceURL,
		DiscoveryDate: record.DiscoveryDate,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	for _, a := range record.Actors {
		out.Actors = append(out.Actors, threatActorResponse{
			Name:          a.Name,
			Description:   a.Description,
			Aliases:       a.Aliases,
			OriginCountry: a.OriginCountry,
			Motivation:    a.Motivation,
		})
	}
	for _, in := range record.Indicators {
		out.Indicators = append(out.Indicators, threatIndicatorResponse{
			Type:        in.Type,
			Value:       in.Value,
			Confidence:  in.Confidence,
			Description: in.Description,
		})
	}
	for _, sys := range record.Systems {
		out.AffectedSystems = append(out.AffectedSystems, affectedSystemResponse{
			Name:    sys.Name,
			Type:    sys.Type,
			Version: sys.Version,
			Impact:  sys.Impact,
		})
	}
	return out
}

// handleListThreats handles GET /threats. Results are newest-first.
func (s *Server) handleListThreats(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	records, err := s.store.ListThreats(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list threats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list threats")
		return
	}
	total, err := s.store.CountThreats(r.Context())
	if err != nil {
		s.logger.Error("failed to count threats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list threats")
		return
	}

	out := make([]threatResponse, 0, len(records))
	for i := range records {
		out = append(out, toThreatResponse(&records[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threats": out,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// handleGetThreat handles GET /threats/{id}.
func (s *Server) handleGetThreat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	record, err := s.store.GetThreat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("threat %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("threat lookup failed", "threat_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load threat")
		return
	}

	respondJSON(w, http.StatusOK, toThreatResponse(record))
}
