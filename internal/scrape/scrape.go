// Package scrape implements the best-effort content-extraction collaborator.
// Pages vary wildly, so missing fields come back as placeholders rather than
// errors; only transport-level failures surface, wrapped as external-service
// errors.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"resumeadvisor/internal/apperr"
)

// Placeholder values for fields the page does not expose.
const (
	PlaceholderTitle   = "Untitled"
	PlaceholderCompany = "Unknown Company"
)

// Posting holds the fields scraped from a job page.
type Posting struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Scraper fetches job pages over HTTP with a bounded timeout.
type Scraper struct {
	client *http.Client
}

// NewScraper 构造 Scraper。
func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{client: &http.Client{Timeout: timeout}}
}

// FetchPosting downloads a job page and extracts title, company, and
// description. Fields that cannot be found fall back to placeholders.
func (s *Scraper) FetchPosting(ctx context.Context, pageURL string) (*Posting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperr.Validation("invalid url")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ResumeAdvisor/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.External("failed to fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.External(fmt.Sprintf("page returned status %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperr.External("failed to parse page", err)
	}

	posting := &Posting{
		Title:       firstText(doc, "h1", `meta[property="og:title"]`, "title"),
		Company:     firstText(doc, `[class*="company"]`, `meta[property="og:site_name"]`),
		Description: firstText(doc, `[class*="description"]`, `meta[name="description"]`, `meta[property="og:description"]`),
		URL:         pageURL,
	}
	if posting.Title == "" {
		posting.Title = PlaceholderTitle
	}
	if posting.Company == "" {
		posting.Company = PlaceholderCompany
	}
	return posting, nil
}

// firstText returns the first non-empty match among selectors, reading meta
// tags via their content attribute.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if strings.HasPrefix(selector, "meta") {
			if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
			continue
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return collapseWhitespace(text)
		}
	}
	return ""
}

var (
	wordPattern       = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+#.\-]{1,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	stopwords = map[string]bool{
		"and": true, "the": true, "for": true, "with": true, "you": true,
		"are": true, "our": true, "will": true, "have": true, "this": true,
		"that": true, "from": true, "your": true, "their": true, "they": true,
		"about": true, "into": true, "been": true, "more": true, "than": true,
		"team": true, "work": true, "role": true, "who": true, "what": true,
		"all": true, "can": true, "not": true, "but": true, "was": true,
	}
)

// Keywords extracts at most max keyword candidates from raw text, ranked by
// frequency. A cheap heuristic, not the AI path; callers wanting quality use
// the ai package.
func Keywords(text string, max int) []string {
	if max <= 0 {
		max = 20
	}

	counts := map[string]int{}
	order := []string{}
	for _, raw := range wordPattern.FindAllString(text, -1) {
		word := strings.ToLower(raw)
		if len(word) < 3 || stopwords[word] {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > max {
		order = order[:max]
	}
	return order
}

func collapseWhitespace(s string) string {
	return whitespacePattern.ReplaceAllString(s, " ")
}
