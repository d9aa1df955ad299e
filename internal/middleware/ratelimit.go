package middleware

import (
	"net/http"

	"github.com/agentvault/vaultgate/internal/service"
	"github.com/gin-gonic/gin"
)

func RateLimitMiddleware(pm *service.PrincipalManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Must run after AuthMiddleware.
		principal, ok := GetPrincipal(c)
		if !ok {
			// Anonymous requests (auth disabled) are not rate limited.
			c.Next()
			return
		}

		limiter := pm.GetLimiter(principal.Address)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
