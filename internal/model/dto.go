package model

import (
	"github.com/shopspring/decimal"
)

// Addresses arrive as hex strings and are validated and normalized to
// common.Address once, at the handler edge.

type CreateVaultRequest struct {
	Agent          string          `json:"agent" binding:"required"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	PerTxLimit     decimal.Decimal `json:"per_tx_limit"`
	InitialFunding decimal.Decimal `json:"initial_funding"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Token  string          `json:"token,omitempty"`
}

type SendRequest struct {
	To     string          `json:"to" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Memo   string          `json:"memo,omitempty"`
}

type SendResponse struct {
	TxRef             string        `json:"tx_ref,omitempty"`
	SpentToday        string        `json:"spent_today"`
	Balance           string        `json:"balance"`
	RequiresApproval  bool          `json:"requires_approval,omitempty"`
	TrustVerdict      *TrustVerdict `json:"trust_verdict,omitempty"`
	TrustFromCache    bool          `json:"trust_from_cache,omitempty"`
	WhitelistedSkip   bool          `json:"whitelisted_skip,omitempty"`
	GuardrailReason   string        `json:"guardrail_reason,omitempty"`
}

type OwnerWithdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	All    bool            `json:"all,omitempty"`
	Token  string          `json:"token,omitempty"`
}

type SetLimitsRequest struct {
	DailyLimit decimal.Decimal `json:"daily_limit"`
	PerTxLimit decimal.Decimal `json:"per_tx_limit"`
}

type SetAgentRequest struct {
	Agent string `json:"agent" binding:"required"`
}

type SetWhitelistModeRequest struct {
	Enabled bool `json:"enabled"`
}

type WhitelistEntryRequest struct {
	Address string `json:"address" binding:"required"`
	Allowed bool   `json:"allowed"`
}

type DrainRequest struct {
	Tokens []string `json:"tokens,omitempty"`
}

type CreateWithdrawalRequest struct {
	Kind      string          `json:"kind" binding:"required"`
	Token     string          `json:"token,omitempty"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Recipient string          `json:"recipient" binding:"required"`
}
