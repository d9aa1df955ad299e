package handler

import (
	"net/http"

	"github.com/agentvault/vaultgate/internal/middleware"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/service"
	"github.com/gin-gonic/gin"
)

type StateHandler struct {
	svc *service.StateService
}

func NewStateHandler(svc *service.StateService) *StateHandler {
	return &StateHandler{svc: svc}
}

func (h *StateHandler) Export(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Export())
}

// Import replaces the withdrawal workflow and trust cache wholesale with
// a previously exported snapshot.
func (h *StateHandler) Import(c *gin.Context) {
	var state model.GatewayState
	if err := c.ShouldBindJSON(&state); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.svc.Import(&state)
	middleware.AddAuditContext(c, "action", "state_import")
	c.JSON(http.StatusOK, gin.H{"imported": true})
}

func (h *StateHandler) Persist(c *gin.Context) {
	if err := h.svc.Persist(c.Request.Context()); err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	middleware.AddAuditContext(c, "action", "state_persist")
	c.JSON(http.StatusOK, gin.H{"persisted": true})
}
