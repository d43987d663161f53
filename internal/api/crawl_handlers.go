package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"seer/internal/crawl"
	"seer/internal/store"
)

// crawlRequest is the single-URL submission body.
type crawlRequest struct {
	JobID       string `json:"job_id,omitempty"`
	URL         string `json:"url"`
	Depth       int    `json:"depth,omitempty"`
	MaxPages    int    `json:"max_pages,omitempty"`
	ScraperMode string `json:"scraper_mode,omitempty"`
}

// crawlMultipleRequest is the multi-URL submission body.
type crawlMultipleRequest struct {
	JobID       string   `json:"job_id,omitempty"`
	URLs        []string `json:"urls"`
	Depth       int      `json:"depth,omitempty"`
	MaxPages    int      `json:"max_pages,omitempty"`
	ScraperMode string   `json:"scraper_mode,omitempty"`
}

type jobResponse struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	Cancelled    bool       `json:"cancelled,omitempty"`
	URLs         []string   `json:"urls,omitempty"`
	Depth        int        `json:"depth"`
	MaxPages     int        `json:"max_pages"`
	ScraperMode  string     `json:"scraper_mode,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	PagesCrawled int        `json:"pages_crawled"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job *store.CrawlJob) jobResponse {
	return jobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Cancelled:    job.Cancelled,
		URLs:         job.URLs,
		Depth:        job.Depth,
		MaxPages:     job.MaxPages,
		ScraperMode:  job.ScraperMode,
		ErrorMessage: job.ErrorMessage,
		PagesCrawled: job.PagesCrawled,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// handleSubmitCrawl handles POST /crawl.
func (s *Server) handleSubmitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	s.submit(w, r, crawl.SubmitRequest{
		JobID:       req.JobID,
		URLs:        []string{req.URL},
		Depth:       req.Depth,
		MaxPages:    req.MaxPages,
		ScraperMode: req.ScraperMode,
	})
}

// handleSubmitCrawlMultiple handles POST /crawl/multiple.
func (s *Server) handleSubmitCrawlMultiple(w http.ResponseWriter, r *http.Request) {
	var req crawlMultipleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	s.submit(w, r, crawl.SubmitRequest{
		JobID:       req.JobID,
		URLs:        req.URLs,
		Depth:       req.Depth,
		MaxPages:    req.MaxPages,
		ScraperMode: req.ScraperMode,
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req crawl.SubmitRequest) {
	jobID, err := s.crawler.SubmitJob(r.Context(), req)
	switch {
	case errors.Is(err, crawl.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, crawl.ErrJobActive):
		respondError(w, http.StatusConflict, fmt.Sprintf("job %s is already running", req.JobID))
		return
	case err != nil:
		s.logger.Error("job submission failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to submit crawl job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"job_id": jobID,
	})
}

// handleJobStatus handles GET /crawl/{job_id}.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	job, err := s.crawler.GetStatus(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	respondJSON(w, http.StatusOK, toJobResponse(job))
}

type pageResponse struct {
	URL        string              `json:"url"`
	FinalURL   string              `json:"final_url,omitempty"`
	Title      string              `json:"title,omitempty"`
	Content    string              `json:"content,omitempty"`
	StatusCode int                 `json:"status_code"`
	Indicators []indicatorResponse `json:"indicators,omitempty"`
}

type indicatorResponse struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
}

// handleJobResults handles GET /crawl/{job_id}/results. Partial results of a
// running or failed job are valid output.
func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	job, pages, err := s.crawler.GetResults(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}
	if err != nil {
		s.logger.Error("job results lookup failed", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load job results")
		return
	}

	out := make([]pageResponse, 0, len(pages))
	for _, page := range pages {
		pr := pageResponse{
			URL:        page.URL,
			FinalURL:   page.FinalURL,
			Title:      page.Title,
			Content:    page.Content,
			StatusCode: page.StatusCode,
		}
		for _, ind := range page.Indicators {
			pr.Indicators = append(pr.Indicators, indicatorResponse{
				Type:       ind.Type,
				Value:      ind.Value,
				Confidence: ind.Confidence,
				Context:    ind.Context,
			})
		}
		out = append(out, pr)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"job":   toJobResponse(job),
		"pages": out,
	})
}

// handleJobCancel handles POST /crawl/{job_id}/cancel.
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	err := s.crawler.Cancel(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %s not found or already finished", jobID))
		return
	}
	if err != nil {
		s.logger.Error("job cancellation failed", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "cancelled",
		"job_id": jobID,
	})
}
