package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/database"
	"resumeadvisor/internal/scrape"
)

// JobHandler 处理职位的增删改查、搜索与网页抓取。
type JobHandler struct {
	db      *gorm.DB
	scraper *scrape.Scraper
}

func NewJobHandler(db *gorm.DB, scraper *scrape.Scraper) *JobHandler {
	return &JobHandler{db: db, scraper: scraper}
}

type jobRequest struct {
	Title           string  `json:"title" binding:"required"`
	CompanyName     string  `json:"company_name" binding:"required"`
	CompanyLocation string  `json:"company_location"`
	CompanyIndustry string  `json:"company_industry"`
	CompanyWebsite  string  `json:"company_website"`
	Description     string  `json:"description"`
	JobLocation     string  `json:"job_location"`
	URL             string  `json:"url"`
	PostedDate      *string `json:"posted_date"`
	CloseDate       *string `json:"close_date"`
}

// findOrCreateCompany 按名称复用公司行，避免同名公司反复入库。
func findOrCreateCompany(tx *gorm.DB, name, location, industry, website string) (*database.Company, error) {
	var company database.Company
	err := tx.Where("name = ?", name).First(&company).Error
	if err == nil {
		return &company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	company = database.Company{
		Name:     name,
		Location: location,
		Industry: industry,
		Website:  website,
	}
	if err := tx.Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// CreateJob 保存一个职位。
func (h *JobHandler) CreateJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	posted, ok := parseDate(req.PostedDate)
	if !ok {
		BadRequest(c, "invalid posted_date")
		return
	}
	closeDate, ok := parseDate(req.CloseDate)
	if !ok {
		BadRequest(c, "invalid close_date")
		return
	}

	ctx := c.Request.Context()
	var job database.JobPosting
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := findOrCreateCompany(tx, req.CompanyName, req.CompanyLocation, req.CompanyIndustry, req.CompanyWebsite)
		if err != nil {
			return err
		}
		job = database.JobPosting{
			UserID:      userID,
			CompanyID:   company.ID,
			Title:       req.Title,
			Description: req.Description,
			JobLocation: req.JobLocation,
			URL:         req.URL,
			PostedDate:  posted,
			CloseDate:   closeDate,
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("create job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"job_id": job.ID})
}

// ListJobs 返回当前用户保存的全部职位。
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var jobs []database.JobPosting
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Preload("Company").
		Order("id DESC").
		Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob 返回一个职位。
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var job database.JobPosting
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Preload("Company").
		First(&job, jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"job": job})
}

type jobUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	JobLocation *string `json:"job_location"`
	URL         *string `json:"url"`
	PostedDate  *string `json:"posted_date"`
	CloseDate   *string `json:"close_date"`
}

// UpdateJob 局部更新职位字段。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req jobUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.JobLocation != nil {
		updates["job_location"] = *req.JobLocation
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.PostedDate != nil {
		posted, ok := parseDate(req.PostedDate)
		if !ok {
			BadRequest(c, "invalid posted_date")
			return
		}
		updates["posted_date"] = posted
	}
	if req.CloseDate != nil {
		closeDate, ok := parseDate(req.CloseDate)
		if !ok {
			BadRequest(c, "invalid close_date")
			return
		}
		updates["close_date"] = closeDate
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&database.JobPosting{}).
		Where("id = ? AND user_id = ?", jobID, userID).
		Updates(updates)
	if result.Error != nil {
		middleware.LoggerFromContext(c).Error("update job failed", slog.Any("error", result.Error))
		Internal(c, "internal error")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "job not found")
		return
	}
	Success(c, http.StatusOK, gin.H{"job_id": jobID})
}

// DeleteJob 删除一个职位；引用它的求职信保留但解除关联。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var job database.JobPosting
		if err := tx.Where("user_id = ?", userID).First(&job, jobID).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.CoverLetter{}).
			Where("job_id = ? AND user_id = ?", jobID, userID).
			Update("job_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&database.JobPosting{}, jobID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		middleware.LoggerFromContext(c).Error("delete job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SearchJobs 在标题与描述中做不区分大小写的子串搜索。
func (h *JobHandler) SearchJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		BadRequest(c, "missing query")
		return
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var jobs []database.JobPosting
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern).
		Preload("Company").
		Order("id DESC").
		Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("search jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"jobs": jobs})
}

type scrapeRequest struct {
	URL string `json:"url" binding:"required"`
}

// ScrapeJob 抓取职位页面并保存为新职位，公司名缺失时使用占位值。
func (h *JobHandler) ScrapeJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	posting, err := h.scraper.FetchPosting(ctx, req.URL)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}

	var job database.JobPosting
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := findOrCreateCompany(tx, posting.Company, "", "", "")
		if err != nil {
			return err
		}
		job = database.JobPosting{
			UserID:      userID,
			CompanyID:   company.ID,
			Title:       posting.Title,
			Description: posting.Description,
			URL:         posting.URL,
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("save scraped job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusCreated, gin.H{"job_id": job.ID, "posting": posting})
}
