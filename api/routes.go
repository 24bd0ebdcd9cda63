package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts all endpoints on r.
func RegisterRoutes(r *gin.Engine, h *Handler, corsOrigin string) {
	r.Use(corsMiddleware(corsOrigin))

	r.POST("/issue", h.issue)
	r.GET("/artifacts/*key", h.artifact)
	r.GET("/qr", h.qr)
	r.GET("/health", h.health)
	r.GET("/stats", h.stats)
}

// corsMiddleware answers preflight requests and stamps the configured
// origin on every response.
func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
