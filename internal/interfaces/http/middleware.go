package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// ActorHeader carries the authenticated user ID, injected by the upstream
// gateway
const ActorHeader = "X-User-ID"

const actorKey = "actor"

func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// actorMiddleware resolves the acting user. Inactive users are resolved
// too; the access policy denies them.
func actorMiddleware(users port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + ActorHeader + " header",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			logger.Error("Failed to resolve actor", "user_id", id, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "failed to resolve user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "unknown user",
			})
			return
		}

		c.Set(actorKey, user)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *entity.User {
	if v, ok := c.Get(actorKey); ok {
		if user, ok := v.(*entity.User); ok {
			return user
		}
	}
	return nil
}
