package main

import (
	"database/sql"
	"net/http"
	"time"

	"musicmatch-platform/internal/httpapi"
	"musicmatch-platform/internal/rbac"
	"musicmatch-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: Placeholder login; real credential validation is out of scope here.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireUser())
	{
		// MATCHES routes
		matches := v1.Group("/matches")
		{
			matches.POST("/rank", h.RankCandidates)
		}

		// CALLS routes
		calls := v1.Group("/calls")
		{
			calls.POST("/request", h.RequestCall)
			calls.POST("/accept", h.AcceptCall)
			calls.POST("/reject", h.RejectCall)
			calls.POST("/cancel", h.CancelCall)
			calls.GET("/last/:peer_id", h.LastCall)
		}

		// ADMIN routes
		// Hidden trust_safety is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleModerator, rbac.RoleSuperAdmin))
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
		}
	}
}
