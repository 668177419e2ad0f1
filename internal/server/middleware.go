package server

import (
	"net/http"
	"strings"
	"time"

	"foodrun/internal/domain"
	"foodrun/internal/logger"
	"foodrun/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	client  = domain.RoleCustomer
	chef    = domain.RoleKitchen
	courier = domain.RoleDelivery

	actorKey = "actor"
)

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header("X-Request-ID", rid)
		l := s.log.With("request_id", rid)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), l))
		start := time.Now()
		c.Next()
		l.Info("request",
			"action", "http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// requireAuth accepts "Bearer <token>" as well as a bare token.
func (s *Server) requireAuth(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if token == "" {
			fail(c, http.StatusUnauthorized, domain.CodeAuthExpired, "missing token")
			return
		}
		sess, err := s.auth.Verify(token)
		if err != nil {
			fail(c, http.StatusUnauthorized, domain.CodeAuthExpired, "invalid or expired token")
			return
		}
		if len(roles) > 0 {
			if err := sess.RequireRole(roles...); err != nil {
				fail(c, http.StatusForbidden, domain.CodeForbidden, "forbidden")
				return
			}
		}
		c.Set(actorKey, usecase.Actor{ID: sess.SubjectID, Role: sess.Role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) usecase.Actor {
	a, _ := c.MustGet(actorKey).(usecase.Actor)
	return a
}
