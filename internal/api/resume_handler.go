package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/composition"
	"resumeadvisor/internal/database"
)

// ResumeHandler 处理简历壳的增删改查以及组合层的全部操作。
type ResumeHandler struct {
	db     *gorm.DB
	engine *composition.Engine
}

func NewResumeHandler(db *gorm.DB, engine *composition.Engine) *ResumeHandler {
	return &ResumeHandler{db: db, engine: engine}
}

type createResumeRequest struct {
	Title       string `json:"title" binding:"required"`
	TemplateKey string `json:"template_key"`
}

// CreateResume 新建一份空简历壳。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req createResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	resume := database.Resume{
		UserID:      userID,
		Title:       req.Title,
		TemplateKey: req.TemplateKey,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&resume).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"resume_id": resume.ID})
}

// GetResume 返回简历壳与其组合行（不做库存展开）。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var resume database.Resume
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ExperienceRefs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ExperienceRefs.Overrides").
		Preload("EducationRefs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ProjectRefs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ProjectRefs.Overrides").
		Preload("SkillRefs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&resume, resumeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusOK, gin.H{"resume": resume})
}

type updateResumeRequest struct {
	Title       *string `json:"title"`
	TemplateKey *string `json:"template_key"`
}

// UpdateResume 更新简历标题或模板。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.TemplateKey != nil {
		updates["template_key"] = *req.TemplateKey
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&database.Resume{}).
		Where("id = ? AND user_id = ?", resumeID, userID).
		Updates(updates)
	if result.Error != nil {
		middleware.LoggerFromContext(c).Error("update resume failed", slog.Any("error", result.Error))
		Internal(c, "internal error")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "resume not found")
		return
	}
	Success(c, http.StatusOK, gin.H{"resume_id": resumeID})
}

// DeleteResume 删除简历及其全部组合行；库存内容不受影响。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var resume database.Resume
		if err := tx.Where("user_id = ?", userID).First(&resume, resumeID).Error; err != nil {
			return err
		}

		var expRefIDs []uint
		if err := tx.Model(&database.ResumeExperienceRef{}).Where("resume_id = ?", resumeID).Pluck("id", &expRefIDs).Error; err != nil {
			return err
		}
		if len(expRefIDs) > 0 {
			if err := tx.Where("ref_id IN ?", expRefIDs).Delete(&database.ExperienceBulletOverride{}).Error; err != nil {
				return err
			}
		}
		var projRefIDs []uint
		if err := tx.Model(&database.ResumeProjectRef{}).Where("resume_id = ?", resumeID).Pluck("id", &projRefIDs).Error; err != nil {
			return err
		}
		if len(projRefIDs) > 0 {
			if err := tx.Where("ref_id IN ?", projRefIDs).Delete(&database.ProjectBulletOverride{}).Error; err != nil {
				return err
			}
		}

		for _, model := range []any{
			&database.ResumeSection{}, &database.ResumeExperienceRef{},
			&database.ResumeEducationRef{}, &database.ResumeProjectRef{},
			&database.ResumeSkillRef{},
		} {
			if err := tx.Where("resume_id = ?", resumeID).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("resume_id = ?", resumeID).Delete(&database.ResumeSummary{}).Error; err != nil {
			return err
		}
		if err := tx.Where("resume_id = ?", resumeID).Delete(&database.ResumeThemeSettings{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Resume{}, resumeID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		middleware.LoggerFromContext(c).Error("delete resume failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// SetPrimary 将这份简历设为主简历，同时清除其它简历的主标记。
func (h *ResumeHandler) SetPrimary(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.SetPrimary(c.Request.Context(), userID, resumeID); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"resume_id": resumeID, "is_primary": true})
}

// ---- Composition ----

type addSectionRequest struct {
	Type          string `json:"type" binding:"required"`
	TitleOverride string `json:"title_override"`
	Position      int    `json:"position"`
}

// AddSection 给简历追加一个版块。
func (h *ResumeHandler) AddSection(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req addSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	sectionID, err := h.engine.AddSection(c.Request.Context(), userID, resumeID, req.Type, req.TitleOverride, req.Position)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"section_id": sectionID})
}

type attachRequest struct {
	LibraryID   uint   `json:"library_id" binding:"required"`
	Position    int    `json:"position"`
	Proficiency string `json:"proficiency"`
}

// AttachExperience 在给定位置引用一段库存经历。
func (h *ResumeHandler) AttachExperience(c *gin.Context) {
	h.attach(c, func(ctx *gin.Context, userID, resumeID uint, req attachRequest) (uint, error) {
		return h.engine.AttachExperience(ctx.Request.Context(), userID, resumeID, req.LibraryID, req.Position)
	})
}

// AttachEducation 在给定位置引用一条库存教育经历。
func (h *ResumeHandler) AttachEducation(c *gin.Context) {
	h.attach(c, func(ctx *gin.Context, userID, resumeID uint, req attachRequest) (uint, error) {
		return h.engine.AttachEducation(ctx.Request.Context(), userID, resumeID, req.LibraryID, req.Position)
	})
}

// AttachProject 在给定位置引用一个库存项目。
func (h *ResumeHandler) AttachProject(c *gin.Context) {
	h.attach(c, func(ctx *gin.Context, userID, resumeID uint, req attachRequest) (uint, error) {
		return h.engine.AttachProject(ctx.Request.Context(), userID, resumeID, req.LibraryID, req.Position)
	})
}

// AttachSkill 在给定位置引用一项库存技能，可附带简历级熟练度。
func (h *ResumeHandler) AttachSkill(c *gin.Context) {
	h.attach(c, func(ctx *gin.Context, userID, resumeID uint, req attachRequest) (uint, error) {
		return h.engine.AttachSkill(ctx.Request.Context(), userID, resumeID, req.LibraryID, req.Position, req.Proficiency)
	})
}

func (h *ResumeHandler) attach(c *gin.Context, fn func(*gin.Context, uint, uint, attachRequest) (uint, error)) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	refID, err := fn(c, userID, resumeID, req)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"ref_id": refID})
}

func refKindParam(c *gin.Context) (composition.RefKind, bool) {
	kind := composition.RefKind(c.Param("kind"))
	if !kind.Valid() {
		BadRequest(c, "invalid kind")
		return "", false
	}
	return kind, true
}

type reorderRequest struct {
	Position int `json:"position"`
}

// Reorder 移动一个组合行到新位置，其余行整体平移。
func (h *ResumeHandler) Reorder(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	kind, ok := refKindParam(c)
	if !ok {
		return
	}
	refID, ok := uintParam(c, "refId")
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.engine.Reorder(c.Request.Context(), userID, resumeID, kind, refID, req.Position); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"ref_id": refID, "position": req.Position})
}

// Detach 解除一个组合行，经历/项目引用的覆盖行一并删除。
func (h *ResumeHandler) Detach(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if _, ok := uintParam(c, "id"); !ok {
		return
	}
	kind, ok := refKindParam(c)
	if !ok {
		return
	}
	refID, ok := uintParam(c, "refId")
	if !ok {
		return
	}
	if err := h.engine.Detach(c.Request.Context(), userID, kind, refID); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

type overrideRequest struct {
	BulletID uint    `json:"bullet_id" binding:"required"`
	Text     *string `json:"text"`
	Position int     `json:"position"`
}

// SetBulletOverride 为一条库存要点建立简历级覆盖（改文案或调顺序）。
func (h *ResumeHandler) SetBulletOverride(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if _, ok := uintParam(c, "id"); !ok {
		return
	}
	kind, ok := refKindParam(c)
	if !ok {
		return
	}
	refID, ok := uintParam(c, "refId")
	if !ok {
		return
	}
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var overrideID uint
	var err error
	switch kind {
	case composition.RefKindExperience:
		overrideID, err = h.engine.SetExperienceBulletOverride(c.Request.Context(), userID, refID, req.BulletID, req.Text, req.Position)
	case composition.RefKindProject:
		overrideID, err = h.engine.SetProjectBulletOverride(c.Request.Context(), userID, refID, req.BulletID, req.Text, req.Position)
	default:
		BadRequest(c, "overrides apply to experience and project refs only")
		return
	}
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"override_id": overrideID})
}

// Resolve 展开整份简历：库存内容、顺序与覆盖合并后的只读视图。
func (h *ResumeHandler) Resolve(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	view, err := h.engine.Resolve(c.Request.Context(), userID, resumeID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"resume": view})
}

type summaryRequest struct {
	Text string `json:"text" binding:"required"`
}

// SetSummary 写入或替换简历摘要。
func (h *ResumeHandler) SetSummary(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.engine.SetSummary(c.Request.Context(), userID, resumeID, req.Text); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"resume_id": resumeID})
}

type themeRequest struct {
	Options json.RawMessage `json:"options" binding:"required"`
}

// SetTheme 写入或替换简历主题配置。
func (h *ResumeHandler) SetTheme(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req themeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.engine.SetTheme(c.Request.Context(), userID, resumeID, datatypes.JSON(req.Options)); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"resume_id": resumeID})
}
