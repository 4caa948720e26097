package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resumeadvisor/internal/ai"
	"resumeadvisor/internal/apperr"
)

type fakeAIClient struct {
	analysis *ai.JobAnalysis
	text     string
	keywords []string
	err      error
}

func (f *fakeAIClient) AnalyzeJob(_ context.Context, _ string) (*ai.JobAnalysis, error) {
	return f.analysis, f.err
}

func (f *fakeAIClient) GenerateSection(_ context.Context, _ string, _ map[string]string) (string, error) {
	return f.text, f.err
}

func (f *fakeAIClient) ExtractKeywords(_ context.Context, _ string, _ int) ([]string, error) {
	return f.keywords, f.err
}

func (f *fakeAIClient) Close() error { return nil }

// unreachableRedis returns a client pointing nowhere; the quota counter treats
// redis failures as best-effort and lets requests through.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
}

func newAITestRouter(client ai.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", uint(1))
		c.Next()
	})
	handler := NewAIHandler(client, unreachableRedis(), 50)
	router.POST("/ai/analyze-job", handler.AnalyzeJob)
	router.POST("/ai/generate-section", handler.GenerateSection)
	router.POST("/ai/keywords", handler.Keywords)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAnalyzeJobReturnsStructuredFields(t *testing.T) {
	router := newAITestRouter(&fakeAIClient{
		analysis: &ai.JobAnalysis{Title: "Backend Engineer", CompanyName: "Acme Corp"},
	})

	rec := postJSON(t, router, "/ai/analyze-job", gin.H{"text": "some job posting"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeEnvelope(t, rec)
	if out["success"] != true {
		t.Fatalf("envelope = %v, want success", out)
	}
	analysis, ok := out["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("analysis missing: %v", out)
	}
	if analysis["title"] != "Backend Engineer" {
		t.Errorf("title = %v", analysis["title"])
	}
}

func TestAIFailureSurfacesGenericMessage(t *testing.T) {
	router := newAITestRouter(&fakeAIClient{
		err: apperr.External("ai service unavailable", errors.New("rpc error: secret provider detail")),
	})

	rec := postJSON(t, router, "/ai/keywords", gin.H{"text": "some job posting"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	out := decodeEnvelope(t, rec)
	if out["success"] != false {
		t.Fatalf("envelope = %v, want failure", out)
	}
	msg, _ := out["error"].(string)
	if msg != "ai service unavailable" {
		t.Errorf("error = %q, want the generic message only", msg)
	}
}

func TestGenerateSectionRequiresSectionType(t *testing.T) {
	router := newAITestRouter(&fakeAIClient{text: "prose"})

	rec := postJSON(t, router, "/ai/generate-section", gin.H{"fields": gin.H{"company": "Acme"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
