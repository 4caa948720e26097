// Package ai wraps the language-generation collaborator. The provider is a
// black box behind a narrow contract: it may fail or time out, and when it
// does the caller sees a generic external-service error, never provider
// detail and never a crash.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"resumeadvisor/internal/apperr"
)

// JobAnalysis is the structured result of analyzing a job description.
type JobAnalysis struct {
	Title           string   `json:"title"`
	CompanyName     string   `json:"company_name"`
	CompanyLocation string   `json:"company_location"`
	CompanyIndustry string   `json:"company_industry"`
	CompanyWebsite  string   `json:"company_website"`
	Description     string   `json:"description"`
	JobLocation     string   `json:"job_location"`
	PostedDate      string   `json:"posted_date"`
	CloseDate       string   `json:"close_date"`
	Requirements    []string `json:"requirements"`
}

// Client is the contract the handlers program against; tests substitute a
// fake.
type Client interface {
	AnalyzeJob(ctx context.Context, jobText string) (*JobAnalysis, error)
	GenerateSection(ctx context.Context, sectionType string, fields map[string]string) (string, error)
	ExtractKeywords(ctx context.Context, text string, max int) ([]string, error)
	Close() error
}

// GeminiClient implements Client on top of Google Gemini.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient 构造 Gemini 客户端。
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

const analyzeJobPrompt = `You are an expert job description analyzer.
Extract the following from the job posting below and return a JSON object
with exactly these keys:
"title", "company_name", "company_location", "company_industry",
"company_website", "description" (2-3 sentence summary), "job_location",
"posted_date" (YYYY-MM-DD or empty string), "close_date" (YYYY-MM-DD or
empty string), "requirements" (array of must-have requirements only).
Return empty strings or an empty array for anything not found.

Job posting:
%s`

// AnalyzeJob extracts structured posting fields from free-form job text.
func (c *GeminiClient) AnalyzeJob(ctx context.Context, jobText string) (*JobAnalysis, error) {
	if strings.TrimSpace(jobText) == "" {
		return nil, apperr.Validation("job description cannot be empty")
	}

	raw, err := c.generateJSON(ctx, fmt.Sprintf(analyzeJobPrompt, jobText))
	if err != nil {
		return nil, err
	}

	var analysis JobAnalysis
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &analysis); err != nil {
		return nil, apperr.External("ai service returned an unusable response", err)
	}
	if analysis.Requirements == nil {
		analysis.Requirements = []string{}
	}
	return &analysis, nil
}

const generateSectionPrompt = `You are a resume writing assistant. Write
concise, professional resume prose for a "%s" section using the fields
below. Return only the prose, no headings and no markdown.

%s`

// GenerateSection produces prose for one resume section from input fields.
func (c *GeminiClient) GenerateSection(ctx context.Context, sectionType string, fields map[string]string) (string, error) {
	if strings.TrimSpace(sectionType) == "" {
		return "", apperr.Validation("section type is required")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, fields[k])
	}

	text, err := c.generateText(ctx, fmt.Sprintf(generateSectionPrompt, sectionType, sb.String()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

const extractKeywordsPrompt = `Extract at most %d skill and technology
keywords from the text below. Return a JSON array of strings, nothing else.

%s`

// ExtractKeywords returns a bounded list of keywords from free text.
func (c *GeminiClient) ExtractKeywords(ctx context.Context, text string, max int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("text cannot be empty")
	}
	if max <= 0 {
		max = 20
	}

	raw, err := c.generateJSON(ctx, fmt.Sprintf(extractKeywordsPrompt, max, text))
	if err != nil {
		return nil, err
	}

	var keywords []string
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &keywords); err != nil {
		return nil, apperr.External("ai service returned an unusable response", err)
	}
	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords, nil
}

// Close releases the underlying provider connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) generateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.3)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperr.External("ai service unavailable", err)
	}
	return textFromResponse(resp)
}

func (c *GeminiClient) generateJSON(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperr.External("ai service unavailable", err)
	}
	return textFromResponse(resp)
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperr.External("ai service returned an empty response", nil)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", apperr.External("ai service returned an empty response", nil)
	}
	return sb.String(), nil
}

// cleanJSONBlock strips the markdown fences some models wrap JSON in.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
