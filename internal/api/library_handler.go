package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"resumeadvisor/internal/database"
	"resumeadvisor/internal/library"
)

// LibraryHandler 处理库存层（经历、教育、项目、技能）的增删改查。
type LibraryHandler struct {
	store *library.Store
}

func NewLibraryHandler(store *library.Store) *LibraryHandler {
	return &LibraryHandler{store: store}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// parseDate 接受 YYYY-MM-DD；nil 输入保持 nil。
func parseDate(s *string) (*time.Time, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// ---- Experiences ----

type experienceRequest struct {
	Company   string  `json:"company" binding:"required"`
	Title     string  `json:"title" binding:"required"`
	Location  string  `json:"location"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Summary   string  `json:"summary"`
}

func (h *LibraryHandler) CreateExperience(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req experienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	start, ok := parseDate(req.StartDate)
	if !ok {
		BadRequest(c, "invalid start_date")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		BadRequest(c, "invalid end_date")
		return
	}

	exp := database.LibraryExperience{
		UserID:    userID,
		Company:   req.Company,
		Title:     req.Title,
		Location:  req.Location,
		StartDate: start,
		EndDate:   end,
		Summary:   req.Summary,
	}
	if err := h.store.CreateExperience(c.Request.Context(), &exp); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"experience_id": exp.ID})
}

func (h *LibraryHandler) ListExperiences(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	experiences, err := h.store.ListExperiences(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"experiences": experiences})
}

type experienceUpdateRequest struct {
	Company   *string `json:"company"`
	Title     *string `json:"title"`
	Location  *string `json:"location"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Summary   *string `json:"summary"`
}

func (h *LibraryHandler) UpdateExperience(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req experienceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Company != nil {
		updates["company"] = *req.Company
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.StartDate != nil {
		start, ok := parseDate(req.StartDate)
		if !ok {
			BadRequest(c, "invalid start_date")
			return
		}
		updates["start_date"] = start
	}
	if req.EndDate != nil {
		end, ok := parseDate(req.EndDate)
		if !ok {
			BadRequest(c, "invalid end_date")
			return
		}
		updates["end_date"] = end
	}
	if req.Summary != nil {
		updates["summary"] = *req.Summary
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.store.UpdateExperience(c.Request.Context(), userID, id, updates); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"experience_id": id})
}

func (h *LibraryHandler) DeleteExperience(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteExperience(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

type bulletRequest struct {
	Position int    `json:"position"`
	Text     string `json:"text" binding:"required"`
}

func (h *LibraryHandler) AddExperienceBullet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	expID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req bulletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	bullet, err := h.store.AddExperienceBullet(c.Request.Context(), userID, expID, req.Position, req.Text)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"bullet_id": bullet.ID})
}

type bulletUpdateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *LibraryHandler) UpdateExperienceBullet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	bulletID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req bulletUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.store.UpdateExperienceBullet(c.Request.Context(), userID, bulletID, req.Text); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"bullet_id": bulletID})
}

func (h *LibraryHandler) DeleteExperienceBullet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	bulletID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteExperienceBullet(c.Request.Context(), userID, bulletID); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ---- Education ----

type educationRequest struct {
	School    string  `json:"school" binding:"required"`
	Degree    string  `json:"degree"`
	Program   string  `json:"program"`
	Location  string  `json:"location"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	GPA       string  `json:"gpa"`
}

func (h *LibraryHandler) CreateEducation(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req educationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	start, ok := parseDate(req.StartDate)
	if !ok {
		BadRequest(c, "invalid start_date")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		BadRequest(c, "invalid end_date")
		return
	}

	edu := database.LibraryEducation{
		UserID:    userID,
		School:    req.School,
		Degree:    req.Degree,
		Program:   req.Program,
		Location:  req.Location,
		StartDate: start,
		EndDate:   end,
		GPA:       req.GPA,
	}
	if err := h.store.CreateEducation(c.Request.Context(), &edu); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"education_id": edu.ID})
}

func (h *LibraryHandler) ListEducation(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	entries, err := h.store.ListEducation(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"education": entries})
}

type educationUpdateRequest struct {
	School    *string `json:"school"`
	Degree    *string `json:"degree"`
	Program   *string `json:"program"`
	Location  *string `json:"location"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	GPA       *string `json:"gpa"`
}

func (h *LibraryHandler) UpdateEducation(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req educationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.School != nil {
		updates["school"] = *req.School
	}
	if req.Degree != nil {
		updates["degree"] = *req.Degree
	}
	if req.Program != nil {
		updates["program"] = *req.Program
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.StartDate != nil {
		start, ok := parseDate(req.StartDate)
		if !ok {
			BadRequest(c, "invalid start_date")
			return
		}
		updates["start_date"] = start
	}
	if req.EndDate != nil {
		end, ok := parseDate(req.EndDate)
		if !ok {
			BadRequest(c, "invalid end_date")
			return
		}
		updates["end_date"] = end
	}
	if req.GPA != nil {
		updates["gpa"] = *req.GPA
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.store.UpdateEducation(c.Request.Context(), userID, id, updates); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"education_id": id})
}

func (h *LibraryHandler) DeleteEducation(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteEducation(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ---- Projects ----

type projectRequest struct {
	Name      string  `json:"name" binding:"required"`
	URL       string  `json:"url"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Summary   string  `json:"summary"`
}

func (h *LibraryHandler) CreateProject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	start, ok := parseDate(req.StartDate)
	if !ok {
		BadRequest(c, "invalid start_date")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		BadRequest(c, "invalid end_date")
		return
	}

	proj := database.LibraryProject{
		UserID:    userID,
		Name:      req.Name,
		URL:       req.URL,
		StartDate: start,
		EndDate:   end,
		Summary:   req.Summary,
	}
	if err := h.store.CreateProject(c.Request.Context(), &proj); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"project_id": proj.ID})
}

func (h *LibraryHandler) ListProjects(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	projects, err := h.store.ListProjects(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"projects": projects})
}

type projectUpdateRequest struct {
	Name      *string `json:"name"`
	URL       *string `json:"url"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Summary   *string `json:"summary"`
}

func (h *LibraryHandler) UpdateProject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req projectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.URL != nil {
		updates["url"] = *req.URL
	}
	if req.StartDate != nil {
		start, ok := parseDate(req.StartDate)
		if !ok {
			BadRequest(c, "invalid start_date")
			return
		}
		updates["start_date"] = start
	}
	if req.EndDate != nil {
		end, ok := parseDate(req.EndDate)
		if !ok {
			BadRequest(c, "invalid end_date")
			return
		}
		updates["end_date"] = end
	}
	if req.Summary != nil {
		updates["summary"] = *req.Summary
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.store.UpdateProject(c.Request.Context(), userID, id, updates); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"project_id": id})
}

func (h *LibraryHandler) DeleteProject(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteProject(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *LibraryHandler) AddProjectBullet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	projID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req bulletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	bullet, err := h.store.AddProjectBullet(c.Request.Context(), userID, projID, req.Position, req.Text)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"bullet_id": bullet.ID})
}

func (h *LibraryHandler) DeleteProjectBullet(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	bulletID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteProjectBullet(c.Request.Context(), userID, bulletID); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ---- Skills ----

type skillRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
}

func (h *LibraryHandler) CreateSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	skill := database.LibrarySkill{
		UserID:   userID,
		Name:     req.Name,
		Category: req.Category,
	}
	if err := h.store.CreateSkill(c.Request.Context(), &skill); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"skill_id": skill.ID})
}

func (h *LibraryHandler) ListSkills(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	skills, err := h.store.ListSkills(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"skills": skills})
}

type skillUpdateRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
}

func (h *LibraryHandler) UpdateSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req skillUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.store.UpdateSkill(c.Request.Context(), userID, id, updates); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"skill_id": id})
}

func (h *LibraryHandler) DeleteSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteSkill(c.Request.Context(), userID, id); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

type tagSkillRequest struct {
	Kind   string `json:"kind" binding:"required"`
	ItemID uint   `json:"item_id" binding:"required"`
}

func (h *LibraryHandler) TagSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	skillID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req tagSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	tag, err := h.store.TagSkill(c.Request.Context(), userID, skillID, database.TagKind(req.Kind), req.ItemID)
	if err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusCreated, gin.H{"tag_id": tag.ID})
}

func (h *LibraryHandler) UntagSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	tagID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.UntagSkill(c.Request.Context(), userID, tagID); err != nil {
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}
