package txlayer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Transfer records one submission accepted by the Memory layer.
type Transfer struct {
	Token  *common.Address
	To     common.Address
	Amount decimal.Decimal
	Data   []byte
	TxRef  string
}

// Memory is the in-process transaction layer used in SDK-only deployments
// and tests. Every submission succeeds and is recorded; tx references are
// sequential.
type Memory struct {
	mu        sync.Mutex
	seq       uint64
	transfers []Transfer

	// FailTokens lists token contracts whose transfers should fail, for
	// exercising the drain continue-on-error path.
	FailTokens map[common.Address]bool
	// FailNative makes native transfers fail.
	FailNative bool
}

func NewMemory() *Memory {
	return &Memory{FailTokens: make(map[common.Address]bool)}
}

func (m *Memory) SubmitTransfer(ctx context.Context, to common.Address, amount decimal.Decimal, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNative {
		return "", fmt.Errorf("native transfer rejected")
	}
	m.seq++
	ref := fmt.Sprintf("memtx-%d", m.seq)
	m.transfers = append(m.transfers, Transfer{To: to, Amount: amount, Data: data, TxRef: ref})
	return ref, nil
}

func (m *Memory) SubmitTokenTransfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTokens[token] {
		return "", fmt.Errorf("token transfer rejected: %s", token.Hex())
	}
	m.seq++
	ref := fmt.Sprintf("memtx-%d", m.seq)
	tok := token
	m.transfers = append(m.transfers, Transfer{Token: &tok, To: to, Amount: amount, TxRef: ref})
	return ref, nil
}

func (m *Memory) WaitForConfirmation(ctx context.Context, txRef string) (Receipt, error) {
	return Receipt{Success: true, BlockRef: "mem-block"}, nil
}

func (m *Memory) ReadContractValue(ctx context.Context, addr common.Address, callData []byte) ([]byte, error) {
	return nil, fmt.Errorf("no contracts in memory layer")
}

// Transfers returns a copy of everything submitted so far.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}
