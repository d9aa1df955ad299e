// Package txlayer wraps the external transaction machinery: submitting
// outbound transfers, waiting for confirmations, and reading contract
// values. The core treats a failure here as a propagated error, never as a
// retry target.
package txlayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Receipt is the confirmation result for a submitted transfer.
type Receipt struct {
	Success  bool   `json:"success"`
	BlockRef string `json:"block_ref,omitempty"`
}

// Layer is the transaction-layer contract consumed by the ledger and the
// withdrawal workflow.
type Layer interface {
	// SubmitTransfer submits a native-currency transfer and returns an
	// opaque transaction reference.
	SubmitTransfer(ctx context.Context, to common.Address, amount decimal.Decimal, data []byte) (string, error)
	// SubmitTokenTransfer submits a token transfer for the given token
	// contract.
	SubmitTokenTransfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (string, error)
	// WaitForConfirmation blocks until the referenced transaction is
	// confirmed or ctx is done.
	WaitForConfirmation(ctx context.Context, txRef string) (Receipt, error)
	// ReadContractValue performs a read-only call against addr with
	// pre-packed call data.
	ReadContractValue(ctx context.Context, addr common.Address, callData []byte) ([]byte, error)
}
