package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/database"
)

// CoverLetterHandler 处理求职信的增删改查。
type CoverLetterHandler struct {
	db *gorm.DB
}

func NewCoverLetterHandler(db *gorm.DB) *CoverLetterHandler {
	return &CoverLetterHandler{db: db}
}

type coverLetterRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
	JobID   *uint  `json:"job_id"`
}

// CreateCoverLetter 新建一封求职信，可选关联某个职位。
func (h *CoverLetterHandler) CreateCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req coverLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if req.JobID != nil {
		var job database.JobPosting
		if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&job, *req.JobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				NotFound(c, "job not found")
				return
			}
			middleware.LoggerFromContext(c).Error("load job failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}

	letter := database.CoverLetter{
		UserID:  userID,
		JobID:   req.JobID,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := h.db.WithContext(ctx).Create(&letter).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create cover letter failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"cover_letter_id": letter.ID})
}

// ListCoverLetters 返回当前用户的全部求职信。
func (h *CoverLetterHandler) ListCoverLetters(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var letters []database.CoverLetter
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&letters).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list cover letters failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"cover_letters": letters})
}

// GetCoverLetter 返回一封求职信。
func (h *CoverLetterHandler) GetCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	letterID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var letter database.CoverLetter
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		First(&letter, letterID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "cover letter not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load cover letter failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"cover_letter": letter})
}

type coverLetterUpdateRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	JobID   *uint   `json:"job_id"`
}

// UpdateCoverLetter 局部更新求职信。
func (h *CoverLetterHandler) UpdateCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	letterID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req coverLetterUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.JobID != nil {
		var job database.JobPosting
		if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&job, *req.JobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				NotFound(c, "job not found")
				return
			}
			middleware.LoggerFromContext(c).Error("load job failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		updates["job_id"] = *req.JobID
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	result := h.db.WithContext(ctx).
		Model(&database.CoverLetter{}).
		Where("id = ? AND user_id = ?", letterID, userID).
		Updates(updates)
	if result.Error != nil {
		middleware.LoggerFromContext(c).Error("update cover letter failed", slog.Any("error", result.Error))
		Internal(c, "internal error")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "cover letter not found")
		return
	}
	Success(c, http.StatusOK, gin.H{"cover_letter_id": letterID})
}

// DeleteCoverLetter 删除一封求职信。
func (h *CoverLetterHandler) DeleteCoverLetter(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	letterID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", letterID, userID).
		Delete(&database.CoverLetter{})
	if result.Error != nil {
		middleware.LoggerFromContext(c).Error("delete cover letter failed", slog.Any("error", result.Error))
		Internal(c, "internal error")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "cover letter not found")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}
