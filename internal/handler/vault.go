package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentvault/vaultgate/internal/events"
	"github.com/agentvault/vaultgate/internal/middleware"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type VaultHandler struct {
	custody *service.CustodyService
	hub     *events.Hub

	defaultDailyLimit decimal.Decimal
	defaultPerTxLimit decimal.Decimal
}

func NewVaultHandler(custody *service.CustodyService, hub *events.Hub, defaultDailyLimit, defaultPerTxLimit decimal.Decimal) *VaultHandler {
	return &VaultHandler{
		custody:           custody,
		hub:               hub,
		defaultDailyLimit: defaultDailyLimit,
		defaultPerTxLimit: defaultPerTxLimit,
	}
}

// broadcast pushes a vault action event to websocket subscribers. The
// hub is optional; a nil hub drops events.
func (h *VaultHandler) broadcast(actionType string, actor common.Address, details, txRef string) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(model.ActionLogEntry{
		Type:      actionType,
		Timestamp: time.Now(),
		Actor:     actor,
		Details:   details,
		TxRef:     txRef,
	})
}

func (h *VaultHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}

	var req model.CreateVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	agent, err := parseAddress(req.Agent)
	if err != nil {
		c.Error(err)
		return
	}

	daily := req.DailyLimit
	perTx := req.PerTxLimit
	if daily.IsZero() {
		daily = h.defaultDailyLimit
	}
	if perTx.IsZero() {
		perTx = h.defaultPerTxLimit
	}

	d, err := h.custody.Ledger().Create(principal.Address, agent, daily, perTx, req.InitialFunding)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "delegation_id", d.ID)
	c.JSON(http.StatusCreated, d)
}

func (h *VaultHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.custody.Ledger().List())
}

func (h *VaultHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	d, err := h.custody.Ledger().Get(id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) Deposit(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	var d *model.Delegation
	if req.Token != "" {
		token, perr := parseAddress(req.Token)
		if perr != nil {
			c.Error(perr)
			return
		}
		d, err = h.custody.Ledger().DepositToken(id, token, req.Amount)
	} else {
		d, err = h.custody.Ledger().Deposit(id, req.Amount)
	}
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "amount", req.Amount.String())
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) Send(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.custody.AgentSend(c.Request.Context(), principal.Address, id, to, req.Amount, req.Memo)
	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "recipient", to.Hex())
	middleware.AddAuditContext(c, "amount", req.Amount.String())
	if err != nil {
		middleware.AddAuditContext(c, "rejection", err.Error())
		c.Error(err)
		return
	}
	if resp.TxRef != "" {
		middleware.AddAuditContext(c, "tx_ref", resp.TxRef)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VaultHandler) Withdraw(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.OwnerWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	var txRef string
	var d *model.Delegation
	switch {
	case req.Token != "":
		token, perr := parseAddress(req.Token)
		if perr != nil {
			c.Error(perr)
			return
		}
		txRef, d, err = h.custody.Ledger().OwnerWithdrawToken(c.Request.Context(), principal.Address, id, token, req.Amount)
	case req.All:
		txRef, d, err = h.custody.Ledger().OwnerWithdrawAll(c.Request.Context(), principal.Address, id)
	default:
		txRef, d, err = h.custody.Ledger().OwnerWithdraw(c.Request.Context(), principal.Address, id, req.Amount)
	}
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "tx_ref", txRef)
	h.broadcast("owner_withdraw", principal.Address,
		fmt.Sprintf("delegation %d", id), txRef)
	c.JSON(http.StatusOK, gin.H{"tx_ref": txRef, "delegation": d})
}

func (h *VaultHandler) Pause(c *gin.Context) {
	h.ownerAction(c, func(caller common.Address, id uint64) (*model.Delegation, error) {
		return h.custody.Ledger().Pause(caller, id)
	}, "pause")
}

func (h *VaultHandler) Unpause(c *gin.Context) {
	h.ownerAction(c, func(caller common.Address, id uint64) (*model.Delegation, error) {
		return h.custody.Ledger().Unpause(caller, id)
	}, "unpause")
}

func (h *VaultHandler) Revoke(c *gin.Context) {
	h.ownerAction(c, func(caller common.Address, id uint64) (*model.Delegation, error) {
		return h.custody.Ledger().RevokeAgent(caller, id)
	}, "revoke_agent")
}

func (h *VaultHandler) Drain(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.DrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	tokens := make([]common.Address, 0, len(req.Tokens))
	for _, raw := range req.Tokens {
		token, perr := parseAddress(raw)
		if perr != nil {
			c.Error(perr)
			return
		}
		tokens = append(tokens, token)
	}

	result, err := h.custody.Ledger().EmergencyDrain(c.Request.Context(), principal.Address, id, tokens)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "action", "emergency_drain")
	h.broadcast("emergency_drain", principal.Address,
		fmt.Sprintf("delegation %d, %d token(s), %d failure(s)", id, len(tokens), len(result.Failures)), "")
	if len(result.Failures) > 0 {
		middleware.AddAuditContext(c, "drain_failures", len(result.Failures))
		// Partial success: the caller must inspect the failures list.
		c.JSON(http.StatusMultiStatus, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *VaultHandler) SetLimits(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	d, err := h.custody.Ledger().SetLimits(principal.Address, id, req.DailyLimit, req.PerTxLimit)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "delegation_id", id)
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) SetAgent(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.SetAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	agent, err := parseAddress(req.Agent)
	if err != nil {
		c.Error(err)
		return
	}
	d, err := h.custody.Ledger().SetAgent(principal.Address, id, agent)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "agent", agent.Hex())
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) SetWhitelistMode(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.SetWhitelistModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	d, err := h.custody.Ledger().SetWhitelistEnabled(principal.Address, id, req.Enabled)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) SetWhitelistEntry(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var req model.WhitelistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		c.Error(err)
		return
	}
	d, err := h.custody.Ledger().SetWhitelistEntry(principal.Address, id, addr, req.Allowed)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *VaultHandler) ownerAction(c *gin.Context, fn func(common.Address, uint64) (*model.Delegation, error), action string) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.Error(apperrors.NewNotAuthorized("missing principal context"))
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.Error(err)
		return
	}
	d, err := fn(principal.Address, id)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "delegation_id", id)
	middleware.AddAuditContext(c, "action", action)
	h.broadcast(action, principal.Address, fmt.Sprintf("delegation %d", id), "")
	c.JSON(http.StatusOK, d)
}

func parseID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperrors.NewInvalidRequest("invalid delegation id")
	}
	return id, nil
}

// parseAddress validates and normalizes a hex address at the API edge;
// everything past this point works with common.Address only.
func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidRequest("invalid address: " + raw)
	}
	return common.HexToAddress(raw), nil
}
