// Package api assembles the gin engine serving the family endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Maxborland/EvaCalendar-sub000/internal/api/handlers"
	"github.com/Maxborland/EvaCalendar-sub000/internal/api/middleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Handlers       *handlers.Handlers
	JWTSecret      string
	AllowedOrigins []string
	// InviteLimiter throttles invitation creation per family; nil disables it.
	InviteLimiter middleware.Limiter
	// HealthChecks are reported by name on /health.
	HealthChecks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", healthHandler(cfg.HealthChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := cfg.Handlers
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	families := api.Group("/families")
	{
		families.GET("/my", h.Family.GetMine)
		families.POST("", h.Family.Create)
		families.POST("/leave", h.Family.Leave)
		families.PUT("/:uuid", h.Family.Rename)
		families.DELETE("/:uuid", h.Family.Delete)

		// Members
		families.GET("/:uuid/members", h.Family.ListMembers)
		families.PUT("/:uuid/members/:userUuid", h.Family.UpdateMemberRole)
		families.DELETE("/:uuid/members/:userUuid", h.Family.RemoveMember)

		// Invitations
		// Only admins reach the limiter, so outsiders cannot spend a
		// family's quota.
		families.POST("/:uuid/invitations",
			h.Invitation.RequireAdmin,
			middleware.RateLimit(cfg.InviteLimiter, middleware.FamilyKey),
			h.Invitation.Create,
		)
		families.GET("/:uuid/invitations", h.Invitation.ListPending)
		families.GET("/invitations/:token/preview", h.Invitation.Preview)
		families.DELETE("/invitations/:uuid", h.Invitation.Cancel)
		families.POST("/accept-invitation", h.Invitation.Accept)
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"timestamp":    time.Now().UTC(),
			"dependencies": deps,
		})
	}
}
