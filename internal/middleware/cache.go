package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable. Interview payloads carry bearer
// tokens and results that must not linger in shared caches.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
