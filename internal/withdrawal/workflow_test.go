package withdrawal

import (
	"context"
	"testing"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerA    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ownerB    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	recipient = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestWorkflow(t *testing.T, threshold string) (*Workflow, *txlayer.Memory) {
	t.Helper()
	mem := txlayer.NewMemory()
	var thr *decimal.Decimal
	if threshold != "" {
		v := dec(threshold)
		thr = &v
	}
	w := New(mem, []common.Address{ownerA, ownerB}, thr)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	w.SetClock(func() time.Time { return now })
	return w, mem
}

func TestMultisigLifecycle(t *testing.T) {
	// Above-threshold request: pending, self-approval forbidden,
	// co-owner approval, then execute with a tx reference.
	w, _ := newTestWorkflow(t, "1.0")

	req, err := w.Request(model.WithdrawalNative, nil, dec("2.0"), recipient, ownerA)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, req.Status)

	_, err = w.Approve(req.ID, ownerA)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)

	approved, err := w.Approve(req.ID, ownerB)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, approved.Status)
	assert.Equal(t, ownerB, *approved.ApprovedBy)

	executed, err := w.Execute(context.Background(), req.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalExecuted, executed.Status)
	assert.NotEmpty(t, executed.TxRef)
	assert.NotNil(t, executed.ExecutedAt)
}

func TestAutoApproveBelowThreshold(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	req, err := w.Request(model.WithdrawalNative, nil, dec("0.5"), recipient, ownerA)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, req.Status)
	assert.Equal(t, ownerA, *req.ApprovedBy)
}

func TestNoThresholdMeansNoMultisig(t *testing.T) {
	w, _ := newTestWorkflow(t, "")

	req, err := w.Request(model.WithdrawalNative, nil, dec("1000"), recipient, ownerA)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, req.Status)
}

func TestNonOwnerRejected(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	_, err := w.Request(model.WithdrawalNative, nil, dec("0.5"), recipient, stranger)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)
}

func TestExecuteRequiresApproved(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	req, err := w.Request(model.WithdrawalNative, nil, dec("2.0"), recipient, ownerA)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), req.ID, ownerA)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, err.(*apperrors.AppError).Type)

	_, err = w.Execute(context.Background(), "no-such-id", ownerA)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, err.(*apperrors.AppError).Type)
}

func TestRejectTerminalStates(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	req, err := w.Request(model.WithdrawalNative, nil, dec("2.0"), recipient, ownerA)
	require.NoError(t, err)

	rejected, err := w.Reject(req.ID, ownerB)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalRejected, rejected.Status)

	_, err = w.Reject(req.ID, ownerB)
	require.Error(t, err)
	_, err = w.Approve(req.ID, ownerB)
	require.Error(t, err)
}

func TestTokenWithdrawal(t *testing.T) {
	w, mem := newTestWorkflow(t, "")
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	_, err := w.Request(model.WithdrawalToken, nil, dec("1"), recipient, ownerA)
	require.Error(t, err, "token withdrawal without token address")

	req, err := w.Request(model.WithdrawalToken, &token, dec("1"), recipient, ownerA)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), req.ID, ownerA)
	require.NoError(t, err)

	transfers := mem.Transfers()
	require.Len(t, transfers, 1)
	require.NotNil(t, transfers[0].Token)
	assert.Equal(t, token, *transfers[0].Token)
}

func TestExecuteTransferFailureKeepsApproved(t *testing.T) {
	w, mem := newTestWorkflow(t, "")
	mem.FailNative = true

	req, err := w.Request(model.WithdrawalNative, nil, dec("1"), recipient, ownerA)
	require.NoError(t, err)

	_, err = w.Execute(context.Background(), req.ID, ownerA)
	require.Error(t, err)

	got, err := w.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, got.Status)
	assert.Empty(t, got.TxRef)
}

func TestExportImportRoundTrip(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	r1, err := w.Request(model.WithdrawalNative, nil, dec("2.0"), recipient, ownerA)
	require.NoError(t, err)
	_, err = w.Request(model.WithdrawalNative, nil, dec("0.2"), recipient, ownerB)
	require.NoError(t, err)
	_, err = w.Approve(r1.ID, ownerB)
	require.NoError(t, err)

	state := w.ExportState()

	w2, _ := newTestWorkflow(t, "1.0")
	w2.ImportState(state)

	assert.Equal(t, w.List(), w2.List())
	assert.Equal(t, w.ActionLog(), w2.ActionLog())

	// Imported state is live: the approved request can execute.
	executed, err := w2.Execute(context.Background(), r1.ID, ownerA)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalExecuted, executed.Status)
}

func TestActionLogAppendOnly(t *testing.T) {
	w, _ := newTestWorkflow(t, "1.0")

	var seen []model.ActionLogEntry
	w.OnAction(func(e model.ActionLogEntry) { seen = append(seen, e) })

	req, err := w.Request(model.WithdrawalNative, nil, dec("2.0"), recipient, ownerA)
	require.NoError(t, err)
	_, err = w.Approve(req.ID, ownerB)
	require.NoError(t, err)
	_, err = w.Execute(context.Background(), req.ID, ownerB)
	require.NoError(t, err)

	log := w.ActionLog()
	require.Len(t, log, 3)
	assert.Equal(t, "withdrawal_requested", log[0].Type)
	assert.Equal(t, "withdrawal_approved", log[1].Type)
	assert.Equal(t, "withdrawal_executed", log[2].Type)
	assert.NotEmpty(t, log[2].TxRef)
	assert.Equal(t, log, seen)
}
