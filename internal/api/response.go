package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeadvisor/internal/apperr"
)

// Success writes the {"success": true, ...} envelope every endpoint uses.
func Success(c *gin.Context, status int, payload gin.H) {
	out := gin.H{"success": true}
	for k, v := range payload {
		out[k] = v
	}
	c.JSON(status, out)
}

// Error writes the {"success": false, "error": msg} envelope.
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// RespondError maps a typed business error onto an HTTP status. Anything
// untyped is an infrastructure failure: the caller gets the fallback message
// and no internal detail.
func RespondError(c *gin.Context, err error, fallback string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		BadRequest(c, err.Error())
	case apperr.KindConflict, apperr.KindDangling:
		Conflict(c, err.Error())
	case apperr.KindCrossOwner:
		Forbidden(c, err.Error())
	case apperr.KindNotFound:
		NotFound(c, err.Error())
	case apperr.KindExternal:
		// Generic message only; provider detail stays in the logs.
		Error(c, http.StatusServiceUnavailable, clientMessage(err))
	default:
		Internal(c, fallback)
	}
}

// clientMessage strips the wrapped cause so provider errors never leak to
// callers. apperr.Error renders "msg: cause"; only msg goes out.
func clientMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	return "service unavailable"
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
