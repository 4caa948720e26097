package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/database"
	"resumeadvisor/internal/validate"
)

// UserHandler 处理个人资料的查询、更新与注销。
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

type userProfile struct {
	ID            uint   `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	Location      string `json:"location"`
	LinkedIn      string `json:"linkedin"`
	GitHub        string `json:"github"`
	EmailVerified bool   `json:"email_verified"`
}

func profileOf(u *database.User) userProfile {
	return userProfile{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Location:      u.Location,
		LinkedIn:      u.LinkedIn,
		GitHub:        u.GitHub,
		EmailVerified: u.EmailVerified,
	}
}

// GetProfile 返回当前用户的资料。
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusOK, gin.H{"user": profileOf(&user)})
}

type updateProfileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Location  *string `json:"location"`
	LinkedIn  *string `json:"linkedin"`
	GitHub    *string `json:"github"`
}

// UpdateProfile 局部更新用户资料，只写入请求中出现的字段。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Email != nil {
		if !validate.Email(*req.Email) {
			BadRequest(c, "invalid email address")
			return
		}
		updates["email"] = *req.Email
		// 换绑邮箱后需要重新验证。
		updates["email_verified"] = false
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.LinkedIn != nil {
		updates["linked_in"] = *req.LinkedIn
	}
	if req.GitHub != nil {
		updates["git_hub"] = *req.GitHub
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	ctx := c.Request.Context()
	result := h.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		middleware.LoggerFromContext(c).Error("update user failed", slog.Any("error", result.Error))
		Internal(c, "internal error")
		return
	}
	if result.RowsAffected == 0 {
		NotFound(c, "user not found")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		middleware.LoggerFromContext(c).Error("reload user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusOK, gin.H{"user": profileOf(&user)})
}

// DeleteAccount 注销账号及其全部数据。
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 覆盖行只挂在 ref_id 上，必须在引用行之前清理。
		var expRefIDs []uint
		if err := tx.Model(&database.ResumeExperienceRef{}).Where("user_id = ?", userID).Pluck("id", &expRefIDs).Error; err != nil {
			return err
		}
		if len(expRefIDs) > 0 {
			if err := tx.Where("ref_id IN ?", expRefIDs).Delete(&database.ExperienceBulletOverride{}).Error; err != nil {
				return err
			}
		}
		var projRefIDs []uint
		if err := tx.Model(&database.ResumeProjectRef{}).Where("user_id = ?", userID).Pluck("id", &projRefIDs).Error; err != nil {
			return err
		}
		if len(projRefIDs) > 0 {
			if err := tx.Where("ref_id IN ?", projRefIDs).Delete(&database.ProjectBulletOverride{}).Error; err != nil {
				return err
			}
		}

		// 库存内容与引用行都挂在 user_id 上，逐表清理。
		ownedModels := []any{
			&database.ResumeSection{}, &database.ResumeExperienceRef{},
			&database.ResumeEducationRef{}, &database.ResumeProjectRef{},
			&database.ResumeSkillRef{}, &database.SkillTag{},
			&database.LibrarySkill{}, &database.LibraryEducation{},
			&database.JobPosting{}, &database.CoverLetter{},
		}
		for _, model := range ownedModels {
			if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
				return err
			}
		}

		var resumeIDs []uint
		if err := tx.Model(&database.Resume{}).Where("user_id = ?", userID).Pluck("id", &resumeIDs).Error; err != nil {
			return err
		}
		if len(resumeIDs) > 0 {
			if err := tx.Where("resume_id IN ?", resumeIDs).Delete(&database.ResumeSummary{}).Error; err != nil {
				return err
			}
			if err := tx.Where("resume_id IN ?", resumeIDs).Delete(&database.ResumeThemeSettings{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&database.Resume{}, resumeIDs).Error; err != nil {
				return err
			}
		}

		var expIDs []uint
		if err := tx.Model(&database.LibraryExperience{}).Where("user_id = ?", userID).Pluck("id", &expIDs).Error; err != nil {
			return err
		}
		if len(expIDs) > 0 {
			if err := tx.Where("library_experience_id IN ?", expIDs).Delete(&database.ExperienceBullet{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&database.LibraryExperience{}, expIDs).Error; err != nil {
				return err
			}
		}

		var projIDs []uint
		if err := tx.Model(&database.LibraryProject{}).Where("user_id = ?", userID).Pluck("id", &projIDs).Error; err != nil {
			return err
		}
		if len(projIDs) > 0 {
			if err := tx.Where("library_project_id IN ?", projIDs).Delete(&database.ProjectBullet{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&database.LibraryProject{}, projIDs).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&database.User{}, userID).Error
	})
	if err != nil {
		logger.Error("delete account failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("account deleted")
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ListResumes 返回当前用户的全部简历壳。
func (h *UserHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var resumes []database.Resume
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&resumes).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list resumes failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(resumes))
	for _, r := range resumes {
		out = append(out, gin.H{
			"id":           r.ID,
			"title":        r.Title,
			"template_key": r.TemplateKey,
			"is_primary":   r.IsPrimary,
			"created_at":   r.CreatedAt,
			"updated_at":   r.UpdatedAt,
		})
	}

	Success(c, http.StatusOK, gin.H{"resumes": out})
}
