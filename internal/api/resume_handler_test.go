package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumeadvisor/internal/composition"
	"resumeadvisor/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newResumeTestRouter(t *testing.T, db *gorm.DB, userID uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})

	handler := NewResumeHandler(db, composition.NewEngine(db))
	group := router.Group("/resumes")
	group.POST("", handler.CreateResume)
	group.PUT("/:id/primary", handler.SetPrimary)
	group.POST("/:id/sections", handler.AddSection)
	group.POST("/:id/experiences", handler.AttachExperience)
	group.PUT("/:id/refs/:kind/:refId/position", handler.Reorder)
	group.DELETE("/:id/refs/:kind/:refId", handler.Detach)
	group.POST("/:id/refs/:kind/:refId/bullets", handler.SetBulletOverride)
	group.GET("/:id/resolve", handler.Resolve)
	group.PUT("/:id/summary", handler.SetSummary)
	return router
}

func newRecorder(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedLibraryExperience(t *testing.T, db *gorm.DB, userID uint, company string, bullets ...string) (uint, []uint) {
	t.Helper()
	exp := database.LibraryExperience{UserID: userID, Company: company, Title: "Engineer"}
	if err := db.Create(&exp).Error; err != nil {
		t.Fatalf("seed experience: %v", err)
	}
	ids := make([]uint, 0, len(bullets))
	for i, text := range bullets {
		bullet := database.ExperienceBullet{LibraryExperienceID: exp.ID, Position: i, Text: text}
		if err := db.Create(&bullet).Error; err != nil {
			t.Fatalf("seed bullet: %v", err)
		}
		ids = append(ids, bullet.ID)
	}
	return exp.ID, ids
}

func TestComposeAndResolveOverHTTP(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "ada@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	router := newResumeTestRouter(t, db, user.ID)

	expID, bulletIDs := seedLibraryExperience(t, db, user.ID, "Acme Corp",
		"Built the ingestion pipeline",
		"Shipped the v2 API",
	)

	rec := postJSON(t, router, "/resumes", gin.H{"title": "Backend Resume"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create resume status = %d: %s", rec.Code, rec.Body.String())
	}
	resumeID := uint(decodeEnvelope(t, rec)["resume_id"].(float64))

	rec = postJSON(t, router, fmt.Sprintf("/resumes/%d/sections", resumeID), gin.H{"type": "experience", "position": 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add section status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, fmt.Sprintf("/resumes/%d/experiences", resumeID), gin.H{"library_id": expID, "position": 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("attach status = %d: %s", rec.Code, rec.Body.String())
	}
	refID := uint(decodeEnvelope(t, rec)["ref_id"].(float64))

	// Same position again is a conflict, not a silent renumber.
	rec = postJSON(t, router, fmt.Sprintf("/resumes/%d/experiences", resumeID), gin.H{"library_id": expID, "position": 0})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate position status = %d, want 409", rec.Code)
	}

	rec = postJSON(t, router, fmt.Sprintf("/resumes/%d/refs/experience/%d/bullets", resumeID, refID),
		gin.H{"bullet_id": bulletIDs[0], "text": "Led the ingestion pipeline rebuild", "position": 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("override status = %d: %s", rec.Code, rec.Body.String())
	}

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/resumes/%d/resolve", resumeID), nil)
	resolveRec := newRecorder(router, req)
	if resolveRec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", resolveRec.Code, resolveRec.Body.String())
	}

	var resolved struct {
		Success bool                   `json:"success"`
		Resume  composition.ResumeView `json:"resume"`
	}
	if err := json.Unmarshal(resolveRec.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode resolve: %v", err)
	}
	if !resolved.Success {
		t.Fatalf("resolve envelope = %s", resolveRec.Body.String())
	}
	if len(resolved.Resume.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(resolved.Resume.Sections))
	}
	bullets := resolved.Resume.Sections[0].Experiences[0].Bullets
	if len(bullets) != 2 {
		t.Fatalf("bullets = %d, want 2", len(bullets))
	}
	if bullets[0].Text != "Led the ingestion pipeline rebuild" || !bullets[0].Overridden {
		t.Errorf("first bullet = %+v", bullets[0])
	}
	if bullets[1].Text != "Shipped the v2 API" || bullets[1].Overridden {
		t.Errorf("second bullet = %+v", bullets[1])
	}
}

func TestDetachUnknownKindIsBadRequest(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "ada@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	router := newResumeTestRouter(t, db, user.ID)

	req, _ := http.NewRequest(http.MethodDelete, "/resumes/1/refs/widget/1", nil)
	rec := newRecorder(router, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResolveMissingResumeIsNotFound(t *testing.T) {
	db := newTestDB(t)
	user := database.User{Email: "ada@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	router := newResumeTestRouter(t, db, user.ID)

	req, _ := http.NewRequest(http.MethodGet, "/resumes/999/resolve", nil)
	rec := newRecorder(router, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	out := decodeEnvelope(t, rec)
	if out["success"] != false {
		t.Errorf("envelope = %v, want failure envelope", out)
	}
}
