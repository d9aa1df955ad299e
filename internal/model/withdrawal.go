package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalExecuted WithdrawalStatus = "executed"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type WithdrawalKind string

const (
	WithdrawalNative WithdrawalKind = "native"
	WithdrawalToken  WithdrawalKind = "token"
)

// WithdrawalRequest is one entry in the off-chain owner withdrawal
// workflow. Requests at or above the multi-sig threshold start pending and
// need a second owner-class approval; smaller ones are auto-approved by
// their requester.
type WithdrawalRequest struct {
	ID          string           `json:"id"`
	Kind        WithdrawalKind   `json:"kind"`
	Token       *common.Address  `json:"token,omitempty"`
	Amount      decimal.Decimal  `json:"amount"`
	Recipient   common.Address   `json:"recipient"`
	Status      WithdrawalStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	RequestedBy common.Address   `json:"requested_by"`
	ApprovedBy  *common.Address  `json:"approved_by,omitempty"`
	ExecutedAt  *time.Time       `json:"executed_at,omitempty"`
	TxRef       string           `json:"tx_ref,omitempty"`
}

// ActionLogEntry is one append-only audit record of a workflow transition.
// Entries are exported and imported as an ordered sequence, never mutated
// in place.
type ActionLogEntry struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     common.Address `json:"actor"`
	Details   string         `json:"details"`
	TxRef     string         `json:"tx_ref,omitempty"`
}

// WorkflowState is the opaque order-preserving serialization the
// surrounding application persists between restarts.
type WorkflowState struct {
	Requests []*WithdrawalRequest `json:"requests"`
	Log      []ActionLogEntry     `json:"log"`
}
