package middleware

import (
	"net/http"

	"github.com/agentvault/vaultgate/internal/config"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	HeaderGatewayKey    = "X-Gateway-Key"
	ContextPrincipalKey = "principal"
)

func AuthMiddleware(cfg *config.Config, pm *service.PrincipalManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			if cfg != nil && !cfg.Auth.RequireAPIKey {
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		principal, ok := pm.GetByAPIKey(apiKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// GetPrincipal pulls the authenticated principal from the gin context.
func GetPrincipal(c *gin.Context) (*model.Principal, bool) {
	val, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := val.(*model.Principal)
	return p, ok
}

// OwnerOnly rejects principals that are not owner-class. Must run after
// AuthMiddleware.
func OwnerOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !p.IsOwner() {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner-class principal required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
