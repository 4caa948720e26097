package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resumeadvisor/internal/ai"
	"resumeadvisor/internal/api/middleware"
)

const aiRateKeyPrefix = "rate:ai:"

// AIHandler 封装 AI 辅助端点，并按用户做每日配额限流。
type AIHandler struct {
	client         ai.Client
	redis          redis.UniversalClient
	requestsPerDay int
}

// NewAIHandler 构造 AI 处理器。requestsPerDay 为每用户每日调用上限。
func NewAIHandler(client ai.Client, redisClient redis.UniversalClient, requestsPerDay int) *AIHandler {
	return &AIHandler{
		client:         client,
		redis:          redisClient,
		requestsPerDay: requestsPerDay,
	}
}

// allow 递增用户当日的调用计数。Redis 不可用时放行，限流是尽力而为。
func (h *AIHandler) allow(c *gin.Context, userID uint) bool {
	key := aiRateKeyPrefix + strconv.FormatUint(uint64(userID), 10) + ":" + time.Now().UTC().Format("20060102")
	count, err := incrWithTTL(c.Request.Context(), h.redis, key, 24*time.Hour)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("ai rate counter unavailable", slog.Any("error", err))
		return true
	}
	if count > int64(h.requestsPerDay) {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "daily ai quota exceeded"})
		return false
	}
	return true
}

type analyzeJobRequest struct {
	Text string `json:"text" binding:"required"`
}

// AnalyzeJob 把职位描述文本解析为结构化字段。
func (h *AIHandler) AnalyzeJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req analyzeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !h.allow(c, userID) {
		return
	}

	analysis, err := h.client.AnalyzeJob(c.Request.Context(), req.Text)
	if err != nil {
		middleware.LoggerFromContext(c).Error("analyze job failed", slog.Any("error", err))
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"analysis": analysis})
}

type generateSectionRequest struct {
	SectionType string            `json:"section_type" binding:"required"`
	Fields      map[string]string `json:"fields"`
}

// GenerateSection 根据素材为某个版块生成文案。
func (h *AIHandler) GenerateSection(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req generateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !h.allow(c, userID) {
		return
	}

	text, err := h.client.GenerateSection(c.Request.Context(), req.SectionType, req.Fields)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate section failed", slog.Any("error", err))
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"text": text})
}

type keywordsRequest struct {
	Text string `json:"text" binding:"required"`
	Max  int    `json:"max"`
}

// Keywords 从职位文本中提取关键字列表。
func (h *AIHandler) Keywords(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req keywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !h.allow(c, userID) {
		return
	}

	keywords, err := h.client.ExtractKeywords(c.Request.Context(), req.Text, req.Max)
	if err != nil {
		middleware.LoggerFromContext(c).Error("extract keywords failed", slog.Any("error", err))
		RespondError(c, err, "internal error")
		return
	}
	Success(c, http.StatusOK, gin.H{"keywords": keywords})
}
