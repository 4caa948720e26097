package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumeadvisor/internal/api/middleware"
	"resumeadvisor/internal/auth"
	"resumeadvisor/internal/database"
	"resumeadvisor/internal/tasks"
	"resumeadvisor/internal/validate"
)

const (
	verificationKeyPrefix          = "auth:verify:"
	verificationTTL                = 24 * time.Hour
	refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"
	refreshTokenRevokedMarker      = "revoked"
)

// AuthHandler 处理注册、登录、刷新与邮箱验证。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, asynqClient *asynq.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type signupRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Signup 创建新用户账号并发送验证邮件。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !validate.Email(req.Email) {
		BadRequest(c, "invalid email address")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("email", req.Email))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		logger.Info("signup conflict: email already registered")
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("signup lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Email:        req.Email,
		PasswordHash: hashed,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 验证令牌写入 Redis，邮件投递交给后台队列。
	token := auth.NewVerificationToken()
	if err := h.redis.Set(ctx, verificationKeyPrefix+token, user.ID, verificationTTL).Err(); err != nil {
		logger.Error("store verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	task, err := tasks.NewVerificationEmailTask(user.ID, user.Email, token, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build verification task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if _, err := h.asynqClient.EnqueueContext(ctx, task); err != nil {
		logger.Error("enqueue verification task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	Success(c, http.StatusCreated, gin.H{"user_id": user.ID})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("email", req.Email))

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(user.ID)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusOK, gin.H{
		"access_token":  tokenPair.AccessToken,
		"refresh_token": tokenPair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.authService.AccessTokenTTL().Seconds()),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	claims, err := h.authService.ValidateToken(req.RefreshToken)
	if err != nil {
		logger.Info("refresh token invalid", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		logger.Info("refresh token wrong type or missing jti")
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.redis.Get(ctx, key).Err(); err == nil {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	} else if !errors.Is(err, redis.Nil) {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(claims.UserID)
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 旋转旧刷新令牌，防止重复使用。
	if err := h.revokeRefreshToken(c, key, claims.ExpiresAt); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	Success(c, http.StatusOK, gin.H{
		"access_token":  tokenPair.AccessToken,
		"refresh_token": tokenPair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.authService.AccessTokenTTL().Seconds()),
	})
}

// Verify 消费验证令牌并标记邮箱已验证。
func (h *AuthHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		BadRequest(c, "missing token")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	key := verificationKeyPrefix + token
	userID, err := h.redis.Get(ctx, key).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			NotFound(c, "verification token expired or unknown")
			return
		}
		logger.Error("verification token lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).
		Model(&database.User{}).
		Where("id = ?", uint(userID)).
		Update("email_verified", true).Error; err != nil {
		logger.Error("mark email verified failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	_ = h.redis.Del(ctx, key).Err()

	logger.Info("email verified", slog.Uint64("user_id", userID))
	Success(c, http.StatusOK, gin.H{"verified": true})
}

func (h *AuthHandler) revokeRefreshToken(c *gin.Context, key string, expiresAt *jwt.NumericDate) error {
	ttl := h.authService.RefreshTokenTTL()
	if expiresAt != nil {
		if remaining := time.Until(expiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	return h.redis.Set(c.Request.Context(), key, refreshTokenRevokedMarker, ttl).Err()
}
