// Package crawl orchestrates crawl jobs: submission, fetch-unit dispatch,
// the worker pool that runs each unit through the pipeline, and job
// lifecycle bookkeeping. Pages are retrieved by an external fetch
// collaborator; this package never fetches the open web itself.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"seer/internal/config"
	"seer/internal/schema"
)

// Fetcher retrieves one page through the fetch collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, url, scraperMode string, depth int) (*schema.PageContent, error)
}

// HTTPFetcher talks to the fetch collaborator's HTTP API.
type HTTPFetcher struct {
	baseURL   string
	apiKey    string
	userAgent string
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher from crawler configuration. The per-call
// timeout is applied by the caller through the context.
func NewHTTPFetcher(cfg config.CrawlerConfig) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:   cfg.FetcherURL,
		apiKey:    cfg.FetcherAPIKey,
		userAgent: cfg.UserAgent,
		client:    &http.Client{},
	}
}

type fetchRequest struct {
	URL         string `json:"url"`
	ScraperMode string `json:"scraper_mode,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// Fetch asks the collaborator for one page.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, scraperMode string, depth int) (*schema.PageContent, error) {
	body, err := json.Marshal(fetchRequest{
		URL:         url,
		ScraperMode: scraperMode,
		Depth:       depth,
		UserAgent:   f.userAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("crawl: failed to marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("crawl: failed to create fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl: fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("crawl: fetch collaborator returned %d: %s",
			resp.StatusCode, string(respBody))
	}

	var page schema.PageContent
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("crawl: failed to decode fetch response: %w", err)
	}
	if page.URL == "" {
		page.URL = url
	}
	return &page, nil
}
