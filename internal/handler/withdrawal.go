package handler

import (
	"net/http"

	"github.com/agentvault/vaultgate/internal/middleware"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/withdrawal"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type WithdrawalHandler struct {
	wf *withdrawal.Workflow
}

func NewWithdrawalHandler(wf *withdrawal.Workflow) *WithdrawalHandler {
	return &WithdrawalHandler{wf: wf}
}

func (h *WithdrawalHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	var req model.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		c.Error(err)
		return
	}
	var token *common.Address
	if req.Token != "" {
		t, perr := parseAddress(req.Token)
		if perr != nil {
			c.Error(perr)
			return
		}
		token = &t
	}

	result, err := h.wf.Request(model.WithdrawalKind(req.Kind), token, req.Amount, recipient, principal.Address)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "withdrawal_id", result.ID)
	middleware.AddAuditContext(c, "status", string(result.Status))
	c.JSON(http.StatusCreated, result)
}

func (h *WithdrawalHandler) Approve(c *gin.Context) {
	h.transition(c, h.wf.Approve, "approve")
}

func (h *WithdrawalHandler) Reject(c *gin.Context) {
	h.transition(c, h.wf.Reject, "reject")
}

func (h *WithdrawalHandler) Execute(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id := c.Param("id")

	result, err := h.wf.Execute(c.Request.Context(), id, principal.Address)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "withdrawal_id", id)
	middleware.AddAuditContext(c, "tx_ref", result.TxRef)
	c.JSON(http.StatusOK, result)
}

func (h *WithdrawalHandler) Get(c *gin.Context) {
	result, err := h.wf.Get(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *WithdrawalHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.wf.List())
}

func (h *WithdrawalHandler) ActionLog(c *gin.Context) {
	c.JSON(http.StatusOK, h.wf.ActionLog())
}

func (h *WithdrawalHandler) transition(c *gin.Context, fn func(string, common.Address) (*model.WithdrawalRequest, error), action string) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id := c.Param("id")

	result, err := fn(id, principal.Address)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "withdrawal_id", id)
	middleware.AddAuditContext(c, "action", action)
	c.JSON(http.StatusOK, result)
}
