package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/utils"
)

const (
	// UserIDHeader names the wallet a request acts on
	UserIDHeader = "X-User-ID"
	// IdempotencyKeyHeader makes fund and withdraw safe to retry
	IdempotencyKeyHeader = "Idempotency-Key"

	userIDKey = "userId"
)

// UserMiddleware returns a Gin middleware that scopes the request to the
// wallet named in the X-User-ID header
func UserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:  "error",
				Code:    "USER_REQUIRED",
				Message: "X-User-ID header is required",
			})
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	logger = logger.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			utils.FieldUserID, c.GetString(userIDKey))
	}
}
