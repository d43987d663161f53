package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"seer/internal/rules"
	"seer/internal/store"
)

// ruleRequest is the alert-rule create/update body. Condition carries the
// type-specific payload and is validated before anything is stored.
type ruleRequest struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Condition json.RawMessage `json:"condition"`
	Channels  []string        `json:"channels,omitempty"`
	Enabled   *bool           `json:"enabled,omitempty"`
}

type ruleResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Condition json.RawMessage `json:"condition"`
	Channels  []string        `json:"channels,omitempty"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toRuleResponse(rule *store.AlertRule) ruleResponse {
	return ruleResponse{
		ID:        rule.ID,
		Name:      rule.Name,
		Type:      rule.Type,
		Condition: json.RawMessage(rule.Condition),
		Channels:  rule.Channels,
		Enabled:   rule.Enabled,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

func (req *ruleRequest) validate() error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	if len(req.Condition) == 0 {
		return errors.New("condition is required")
	}
	return rules.ValidateCondition(req.Type, string(req.Condition))
}

// handleListRules handles GET /alerts/rules.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	stored, err := s.store.ListRules(r.Context(), enabledOnly)
	if err != nil {
		s.logger.Error("failed to list rules", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	out := make([]ruleResponse, 0, len(stored))
	for i := range stored {
		out = append(out, toRuleResponse(&stored[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out})
}

// handleCreateRule handles POST /alerts/rules.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := &store.AlertRule{
		Name:      req.Name,
		Type:      req.Type,
		Condition: string(req.Condition),
		Channels:  req.Channels,
		Enabled:   req.Enabled == nil || *req.Enabled,
	}
	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, http.StatusConflict, fmt.Sprintf("rule %q already exists", req.Name))
			return
		}
		s.logger.Error("failed to create rule", "name", req.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	s.logger.Info("alert rule created", "rule_id", rule.ID, "name", rule.Name, "type", rule.Type)
	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

// handleUpdateRule handles PUT /alerts/rules/{id}.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("rule lookup failed", "rule_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing.Name = req.Name
	existing.Type = req.Type
	existing.Condition = string(req.Condition)
	existing.Channels = req.Channels
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.store.UpdateRule(r.Context(), existing); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, http.StatusConflict, fmt.Sprintf("rule %q already exists", req.Name))
			return
		}
		s.logger.Error("failed to update rule", "rule_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(existing))
}

// handleDeleteRule handles DELETE /alerts/rules/{id}. History rows snapshot
// the rule and survive its deletion.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.store.DeleteRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("failed to delete rule", "rule_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "deleted",
		"rule_id": id,
	})
}

// handleToggleRule handles POST /alerts/rules/{id}/toggle.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rule, err := s.store.GetRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("rule %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("rule lookup failed", "rule_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}

	enabled := !rule.Enabled
	if err := s.store.SetRuleEnabled(r.Context(), id, enabled); err != nil {
		s.logger.Error("failed to toggle rule", "rule_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to toggle rule")
		return
	}

	s.logger.Info("alert rule toggled", "rule_id", id, "enabled", enabled)
	respondJSON(w, http.StatusOK, map[string]any{
		"rule_id": id,
		"enabled": enabled,
	})
}

type historyResponse struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	RuleType     string    `json:"rule_type"`
	TriggeredAt  time.Time `json:"triggered_at"`
	Severity     string    `json:"severity,omitempty"`
	Summary      string    `json:"summary"`
	Details      string    `json:"details,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}

// handleAlertHistory handles GET /alerts/history.
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.store.ListHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list alert history", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list alert history")
		return
	}

	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:           e.ID,
			RuleID:       e.RuleID,
			RuleName:     e.RuleName,
			RuleType:     e.RuleType,
			TriggeredAt:  e.TriggeredAt,
			Severity:     e.Severity,
			Summary:      e.Summary,
			Details:      e.Details,
			Acknowledged: e.Acknowledged,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

// handleAcknowledgeAlert handles POST /alerts/history/{id}/ack.
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.store.AcknowledgeHistory(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("alert %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("failed to acknowledge alert", "alert_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "acknowledged",
		"alert_id": id,
	})
}
