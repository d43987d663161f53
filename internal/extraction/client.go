// Package extraction calls the language-model collaborator that turns raw
// page text into structured threat records. The collaborator is external
// and unreliable; every failure mode here maps to an error the normalizer
// degrades on, never a dropped page.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"seer/internal/config"
	"seer/internal/schema"
)

var (
	// ErrNoThreat is returned when the collaborator reports the text
	// contains no threat information.
	ErrNoThreat = errors.New("extraction: no threat found")

	// ErrNotConfigured is returned when no API key is configured.
	ErrNotConfigured = errors.New("extraction: collaborator not configured")

	// ErrMalformedResponse is returned when the reply carries no parseable
	// JSON object.
	ErrMalformedResponse = errors.New("extraction: malformed collaborator response")
)

// Client talks to an OpenAI-style chat-completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	minTextSize int
	httpClient  *http.Client
}

// NewClient creates an extraction client from configuration.
func NewClient(cfg config.ExtractionConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		minTextSize: cfg.MinTextSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ExtractThreat asks the collaborator to produce a structured threat record
// for the given page text. Returns ErrNoThreat when the text carries no
// threat information; any transport, timeout or parse failure is an error
// the caller degrades on.
func (c *Client) ExtractThreat(ctx context.Context, content, sourceURL string) (*schema.Threat, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(content) < c.minTextSize {
		return nil, ErrNoThreat
	}

	reply, err := c.complete(ctx, []chatMessage{
		{Role: "user", Content: threatPrompt(content)},
	})
	if err != nil {
		return nil, err
	}

	if strings.Contains(reply, noThreatSentinel) {
		return nil, ErrNoThreat
	}

	raw, err := firstJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var threat schema.Threat
	if err := json.Unmarshal([]byte(raw), &threat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	threat.SourceURL = sourceURL
	return &threat, nil
}

// Relationship is one extracted entity relationship with its supporting
// sentence.
type Relationship struct {
	SourceEntity     Entity `json:"source_entity"`
	RelationshipType string `json:"relationship_type"`
	TargetEntity     Entity `json:"target_entity"`
	ContextSentence  string `json:"context_sentence"`
}

// Entity is a typed entity reference inside a relationship.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type relationshipEnvelope struct {
	ExtractedRelationships []Relationship `json:"extracted_relationships"`
}

// ExtractRelationships asks the collaborator for entity/relationship triples
// over a free-text block.
func (c *Client) ExtractRelationships(ctx context.Context, text string) ([]Relationship, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	reply, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: relationshipSystemPrompt},
		{Role: "user", Content: relationshipUserPrompt(text)},
	})
	if err != nil {
		return nil, err
	}

	raw, err := firstJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var envelope relationshipEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return envelope.ExtractedRelationships, nil
}

// complete runs one chat-completions round trip.
func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("extraction: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("extraction: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("extraction: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return "", fmt.Errorf("extraction: collaborator error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("extraction: collaborator returned status %d", resp.StatusCode)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	return apiResp.Choices[0].Message.Content, nil
}

// firstJSONObject slices the first balanced top-level JSON object out of a
// reply. Collaborator replies routinely wrap the object in markdown fences
// or prose.
func firstJSONObject(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end <= start {
		return "", ErrMalformedResponse
	}
	return reply[start : end+1], nil
}
