package handler

import (
	"net/http"

	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/trust"
	"github.com/gin-gonic/gin"
)

type TrustHandler struct {
	resolver *trust.Resolver
}

func NewTrustHandler(resolver *trust.Resolver) *TrustHandler {
	return &TrustHandler{resolver: resolver}
}

// Check resolves a trust verdict for an arbitrary address without moving
// any funds. Useful for agents probing a counterparty before committing.
func (h *TrustHandler) Check(c *gin.Context) {
	subject, err := parseAddress(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}

	verdict, fromCache, err := h.resolver.CheckTrust(c.Request.Context(), subject)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"verdict": verdict, "from_cache": fromCache})
}

func (h *TrustHandler) InvalidateCache(c *gin.Context) {
	subject, err := parseAddress(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}
	if cache := h.resolver.Cache(); cache != nil {
		cache.Invalidate(subject)
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": subject.Hex()})
}

func (h *TrustHandler) ClearCache(c *gin.Context) {
	if cache := h.resolver.Cache(); cache != nil {
		cache.Clear()
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
