package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DelegationState is the lifecycle state derived from the paused flag and
// the agent slot.
type DelegationState string

const (
	StateActive  DelegationState = "active"
	StatePaused  DelegationState = "paused"
	StateRevoked DelegationState = "revoked"
)

// Delegation is the custody record between one owner and one agent. The
// owner identity is fixed at creation and has no setter anywhere in the
// codebase; ownership rotation would be a separately-authorized event.
type Delegation struct {
	ID               uint64                             `json:"id"`
	Owner            common.Address                     `json:"owner"`
	Agent            common.Address                     `json:"agent"`
	Paused           bool                               `json:"paused"`
	Balance          decimal.Decimal                    `json:"balance"`
	DailyLimit       decimal.Decimal                    `json:"daily_limit"`
	PerTxLimit       decimal.Decimal                    `json:"per_tx_limit"`
	SpentToday       decimal.Decimal                    `json:"spent_today"`
	WindowStart      time.Time                          `json:"window_start"`
	WhitelistEnabled bool                               `json:"whitelist_enabled"`
	Whitelist        map[common.Address]bool            `json:"whitelist"`
	TokenBalances    map[common.Address]decimal.Decimal `json:"token_balances"`
	CreatedAt        time.Time                          `json:"created_at"`
}

// State reports the derived lifecycle state. A revoked delegation has a
// zero agent and is always paused; there is no way back to active.
func (d *Delegation) State() DelegationState {
	if d.Agent == (common.Address{}) {
		return StateRevoked
	}
	if d.Paused {
		return StatePaused
	}
	return StateActive
}

// Clone returns a deep copy safe to hand outside the ledger lock.
func (d *Delegation) Clone() *Delegation {
	out := *d
	out.Whitelist = make(map[common.Address]bool, len(d.Whitelist))
	for k, v := range d.Whitelist {
		out.Whitelist[k] = v
	}
	out.TokenBalances = make(map[common.Address]decimal.Decimal, len(d.TokenBalances))
	for k, v := range d.TokenBalances {
		out.TokenBalances[k] = v
	}
	return &out
}

// DrainFailure records one token transfer that failed during an emergency
// drain. Failures are collected, never fatal to the rest of the drain.
type DrainFailure struct {
	Token common.Address `json:"token"`
	Err   string         `json:"error"`
}

// DrainResult summarizes an emergency drain: what moved and what did not.
type DrainResult struct {
	NativeAmount decimal.Decimal                    `json:"native_amount"`
	NativeTxRef  string                             `json:"native_tx_ref,omitempty"`
	TokenAmounts map[common.Address]decimal.Decimal `json:"token_amounts"`
	Failures     []DrainFailure                     `json:"failures,omitempty"`
}
