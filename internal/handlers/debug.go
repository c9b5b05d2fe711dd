package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"consultation-service/internal/middleware"
	"consultation-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		caller := middleware.CallerFromContext(c)
		emitter.Emit(c.Request.Context(), "audit_test", 0, "debug endpoint", requestIDFromContext(c), &caller.UserID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
