package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resumeadvisor/internal/apperr"
)

func TestFetchPostingExtractsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<meta name="description" content="Build distributed systems in Go.">
		</head><body>
			<h1>Senior Backend Engineer</h1>
			<div class="company-name">Acme Corp</div>
		</body></html>`))
	}))
	defer server.Close()

	scraper := NewScraper(5 * time.Second)
	posting, err := scraper.FetchPosting(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if posting.Title != "Senior Backend Engineer" {
		t.Errorf("title = %q", posting.Title)
	}
	if posting.Company != "Acme Corp" {
		t.Errorf("company = %q", posting.Company)
	}
	if posting.Description != "Build distributed systems in Go." {
		t.Errorf("description = %q", posting.Description)
	}
	if posting.URL != server.URL {
		t.Errorf("url = %q", posting.URL)
	}
}

func TestFetchPostingFallsBackToPlaceholders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>nothing recognizable</p></body></html>`))
	}))
	defer server.Close()

	scraper := NewScraper(5 * time.Second)
	posting, err := scraper.FetchPosting(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if posting.Title != PlaceholderTitle {
		t.Errorf("title = %q, want placeholder", posting.Title)
	}
	if posting.Company != PlaceholderCompany {
		t.Errorf("company = %q, want placeholder", posting.Company)
	}
}

func TestFetchPostingWrapsTransportFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	scraper := NewScraper(5 * time.Second)
	_, err := scraper.FetchPosting(context.Background(), server.URL)
	if !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("err = %v, want external kind", err)
	}
}

func TestKeywordsRanksByFrequency(t *testing.T) {
	text := "Golang Golang Golang kubernetes kubernetes postgres and the for with you"
	got := Keywords(text, 2)
	if len(got) != 2 {
		t.Fatalf("keywords = %v, want 2 entries", got)
	}
	if got[0] != "golang" || got[1] != "kubernetes" {
		t.Errorf("keywords = %v, want frequency order golang, kubernetes", got)
	}

	// Stopwords and short tokens never surface.
	for _, kw := range Keywords(text, 0) {
		if kw == "and" || kw == "the" || kw == "you" {
			t.Errorf("stopword %q leaked into keywords", kw)
		}
	}
}
