package store

import (
	"context"
	"testing"
)

func seedJob(t *testing.T, s *Store) *CrawlJob {
	t.Helper()
	job := &CrawlJob{URLs: []string{"https://feed.example"}}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestUpsertPageUniquePerJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := seedJob(t, s)

	first := &CrawledPage{
		JobID:   job.ID,
		URL:     "https://feed.example/post",
		Title:   "first fetch",
		Content: "original body",
	}
	if err := s.UpsertPage(ctx, first); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("UpsertPage did not populate page id")
	}

	// Re-ingesting the same URL updates content, never duplicates the row.
	second := &CrawledPage{
		JobID:   job.ID,
		URL:     "https://feed.example/post",
		Title:   "second fetch",
		Content: "updated body",
	}
	if err := s.UpsertPage(ctx, second); err != nil {
		t.Fatalf("UpsertPage again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second upsert id = %d, want surviving row %d", second.ID, first.ID)
	}

	pages, err := s.GetJobPages(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	if pages[0].Content != "updated body" {
		t.Errorf("content = %q, want updated body", pages[0].Content)
	}
}

func TestUpsertPageSameURLDifferentJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobA := seedJob(t, s)
	jobB := seedJob(t, s)

	for _, id := range []string{jobA.ID, jobB.ID} {
		p := &CrawledPage{JobID: id, URL: "https://feed.example/post", Content: "x"}
		if err := s.UpsertPage(ctx, p); err != nil {
			t.Fatalf("UpsertPage job %s: %v", id, err)
		}
	}

	for _, id := range []string{jobA.ID, jobB.ID} {
		pages, err := s.GetJobPages(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(pages) != 1 {
			t.Errorf("job %s pages = %d, want 1", id, len(pages))
		}
	}
}

func TestUpsertIndicatorsConfidenceOnlyRaised(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := seedJob(t, s)

	page := &CrawledPage{JobID: job.ID, URL: "https://feed.example/post", Content: "x"}
	if err := s.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}

	if err := s.UpsertIndicators(ctx, page.ID, []PageIndicator{
		{Type: "ipv4", Value: "192.168.1.100", Confidence: 0.9, Context: "seen in C2 section"},
	}); err != nil {
		t.Fatalf("UpsertIndicators: %v", err)
	}

	// A regex re-match with the default confidence must not lower the
	// stored value.
	if err := s.UpsertIndicators(ctx, page.ID, []PageIndicator{
		{Type: "ipv4", Value: "192.168.1.100", Confidence: 0.6},
		{Type: "cve", Value: "CVE-2021-44228", Confidence: 0.6},
	}); err != nil {
		t.Fatalf("UpsertIndicators again: %v", err)
	}

	pages, err := s.GetJobPages(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages[0].Indicators) != 2 {
		t.Fatalf("indicators = %d, want 2", len(pages[0].Indicators))
	}
	for _, ind := range pages[0].Indicators {
		if ind.Type == "ipv4" && ind.Confidence != 0.9 {
			t.Errorf("ipv4 confidence = %v, want 0.9 kept", ind.Confidence)
		}
	}
}

func TestUpsertIndicatorsHigherConfidenceWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := seedJob(t, s)

	page := &CrawledPage{JobID: job.ID, URL: "https://feed.example/post", Content: "x"}
	if err := s.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}

	if err := s.UpsertIndicators(ctx, page.ID, []PageIndicator{
		{Type: "domain", Value: "evil.example", Confidence: 0.6},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertIndicators(ctx, page.ID, []PageIndicator{
		{Type: "domain", Value: "evil.example", Confidence: 0.95},
	}); err != nil {
		t.Fatal(err)
	}

	pages, _ := s.GetJobPages(ctx, job.ID)
	if got := pages[0].Indicators[0].Confidence; got != 0.95 {
		t.Errorf("confidence = %v, want raised to 0.95", got)
	}
}

func TestCountJobPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := seedJob(t, s)

	for _, url := range []string{"https://a.example", "https://b.example"} {
		if err := s.UpsertPage(ctx, &CrawledPage{JobID: job.ID, URL: url}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountJobPages(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
