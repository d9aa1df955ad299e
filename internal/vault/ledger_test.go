package vault

import (
	"context"
	"errors"
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
	owner     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	agent     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenA    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestLedger(t *testing.T) (*Ledger, *txlayer.Memory, *time.Time) {
	t.Helper()
	mem := txlayer.NewMemory()
	l := NewLedger(mem)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := &now
	l.SetClock(func() time.Time { return *clock })
	return l, mem, clock
}

func TestCreateValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Create(owner, common.Address{}, dec("1"), dec("0.1"), decimal.Zero)
	require.Error(t, err)

	_, err = l.Create(owner, agent, dec("0.1"), dec("1"), decimal.Zero)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidConfig, err.(*apperrors.AppError).Type)

	d, err := l.Create(owner, agent, dec("1"), dec("0.1"), dec("5"))
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, d.State())
	assert.True(t, d.Balance.Equal(dec("5")))
	assert.True(t, d.SpentToday.IsZero())
	assert.False(t, d.WhitelistEnabled)

	// One active delegation per agent.
	_, err = l.Create(owner, agent, dec("1"), dec("0.1"), decimal.Zero)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, err.(*apperrors.AppError).Type)
}

func TestAgentSendDailyLimit(t *testing.T) {
	// Scenario: dailyLimit=1.0, perTxLimit=0.1; ten sends of 0.1 pass,
	// the eleventh fails on the daily cap.
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.1"), dec("10"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, _, err := l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
		require.NoError(t, err, "send %d", i+1)
	}

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
	require.Error(t, err)
	appErr := err.(*apperrors.AppError)
	assert.Equal(t, apperrors.ErrLimitExceeded, appErr.Type)
	assert.Equal(t, apperrors.LimitDaily, appErr.Limit)
}

func TestAgentSendPerTxLimit(t *testing.T) {
	// Per-tx violation wins regardless of remaining daily allowance.
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.1"), dec("10"))
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.2"), "")
	require.Error(t, err)
	appErr := err.(*apperrors.AppError)
	assert.Equal(t, apperrors.ErrLimitExceeded, appErr.Type)
	assert.Equal(t, apperrors.LimitPerTx, appErr.Limit)
}

func TestWindowRollover(t *testing.T) {
	// After 24h the window resets and spentToday equals just the new send.
	l, _, clock := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.5"), dec("10"))
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.5"), "")
	require.NoError(t, err)
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.5"), "")
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.5"), "")
	require.Error(t, err)

	*clock = clock.Add(24 * time.Hour)

	_, snap, err := l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.3"), "")
	require.NoError(t, err)
	assert.True(t, snap.SpentToday.Equal(dec("0.3")), "spentToday=%s", snap.SpentToday)
	assert.Equal(t, *clock, snap.WindowStart)
}

func TestWhitelist(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.5"), dec("10"))
	require.NoError(t, err)

	_, err = l.SetWhitelistEnabled(owner, d.ID, true)
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWhitelistViolation, err.(*apperrors.AppError).Type)

	_, err = l.SetWhitelistEntry(owner, d.ID, recipient, true)
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
	require.NoError(t, err)
}

func TestCheckOrderDeterministic(t *testing.T) {
	// Whitelist is evaluated before per-tx, per-tx before daily, daily
	// before balance.
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.1"), dec("0.05"))
	require.NoError(t, err)

	_, err = l.SetWhitelistEnabled(owner, d.ID, true)
	require.NoError(t, err)

	// Violates whitelist AND per-tx AND balance: whitelist reason wins.
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.2"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWhitelistViolation, err.(*apperrors.AppError).Type)

	_, err = l.SetWhitelistEntry(owner, d.ID, recipient, true)
	require.NoError(t, err)

	// Now per-tx wins over balance.
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.2"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.LimitPerTx, err.(*apperrors.AppError).Limit)

	// Within limits but underfunded: balance reason.
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInsufficientBalance, err.(*apperrors.AppError).Type)
}

func TestNotAgentAndPaused(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.5"), dec("10"))
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), owner, d.ID, recipient, dec("0.1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)

	_, err = l.Pause(owner, d.ID)
	require.NoError(t, err)

	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, err.(*apperrors.AppError).Type)
}

func TestPauseIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1.0"), dec("0.5"), dec("10"))
	require.NoError(t, err)

	first, err := l.Pause(owner, d.ID)
	require.NoError(t, err)
	second, err := l.Pause(owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, first.State(), second.State())
	assert.True(t, second.Paused)

	_, err = l.Pause(agent, d.ID)
	require.Error(t, err)
}

func TestOwnerNeverLimited(t *testing.T) {
	// The owner withdraws past every agent limit and while paused.
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("0.1"), dec("0.01"), dec("100"))
	require.NoError(t, err)

	_, err = l.Pause(owner, d.ID)
	require.NoError(t, err)

	_, snap, err := l.OwnerWithdraw(context.Background(), owner, d.ID, dec("60"))
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(dec("40")))

	txRef, snap, err := l.OwnerWithdrawAll(context.Background(), owner, d.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, txRef)
	assert.True(t, snap.Balance.IsZero())

	// Drained delegation persists as a record.
	got, err := l.Get(d.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	_, _, err = l.OwnerWithdraw(context.Background(), agent, d.ID, dec("1"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)
}

func TestBalanceConservation(t *testing.T) {
	// balance == initialFunding + deposits - agentSends - ownerWithdraws
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("10"), dec("1"), dec("5"))
	require.NoError(t, err)

	_, err = l.Deposit(d.ID, dec("3"))
	require.NoError(t, err)
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("1"), "")
	require.NoError(t, err)
	_, _, err = l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.5"), "")
	require.NoError(t, err)
	_, _, err = l.OwnerWithdraw(context.Background(), owner, d.ID, dec("2"))
	require.NoError(t, err)

	got, err := l.Get(d.ID)
	require.NoError(t, err)
	want := dec("5").Add(dec("3")).Sub(dec("1")).Sub(dec("0.5")).Sub(dec("2"))
	assert.True(t, got.Balance.Equal(want), "balance=%s want=%s", got.Balance, want)
}

func TestDepositNeverLimited(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.1"), decimal.Zero)
	require.NoError(t, err)

	_, err = l.Deposit(d.ID, decimal.Zero)
	require.Error(t, err)

	_, err = l.Pause(owner, d.ID)
	require.NoError(t, err)
	snap, err := l.Deposit(d.ID, dec("2"))
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(dec("2")))

	snap, err = l.DepositToken(d.ID, tokenA, dec("7"))
	require.NoError(t, err)
	assert.True(t, snap.TokenBalances[tokenA].Equal(dec("7")))
}

func TestRevokeTerminal(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.1"), dec("5"))
	require.NoError(t, err)

	snap, err := l.RevokeAgent(owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateRevoked, snap.State())
	assert.True(t, snap.Paused)

	_, err = l.Unpause(owner, d.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, err.(*apperrors.AppError).Type)

	_, err = l.SetAgent(owner, d.ID, recipient)
	require.Error(t, err)

	// The revoked agent identity may be assigned a fresh delegation.
	d2, err := l.Create(owner, agent, dec("1"), dec("0.1"), decimal.Zero)
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, d2.ID)
}

func TestSetAgentUniqueness(t *testing.T) {
	l, _, _ := newTestLedger(t)
	agent2 := common.HexToAddress("0x4444444444444444444444444444444444444444")

	d1, err := l.Create(owner, agent, dec("1"), dec("0.1"), decimal.Zero)
	require.NoError(t, err)
	_, err = l.Create(owner, agent2, dec("1"), dec("0.1"), decimal.Zero)
	require.NoError(t, err)

	_, err = l.SetAgent(owner, d1.ID, agent2)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, err.(*apperrors.AppError).Type)
}

func TestSetLimitsRevalidates(t *testing.T) {
	l, _, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.1"), decimal.Zero)
	require.NoError(t, err)

	_, err = l.SetLimits(owner, d.ID, dec("0.5"), dec("0.6"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidConfig, err.(*apperrors.AppError).Type)

	snap, err := l.SetLimits(owner, d.ID, dec("2"), dec("0.5"))
	require.NoError(t, err)
	assert.True(t, snap.DailyLimit.Equal(dec("2")))
}

func TestEmergencyDrainContinueOnError(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.1"), dec("5"))
	require.NoError(t, err)
	_, err = l.DepositToken(d.ID, tokenA, dec("10"))
	require.NoError(t, err)
	_, err = l.DepositToken(d.ID, tokenB, dec("20"))
	require.NoError(t, err)

	mem.FailTokens[tokenA] = true

	result, err := l.EmergencyDrain(context.Background(), owner, d.ID, []common.Address{tokenA, tokenB})
	require.NoError(t, err)

	// Native and tokenB moved despite tokenA failing.
	assert.True(t, result.NativeAmount.Equal(dec("5")))
	assert.True(t, result.TokenAmounts[tokenB].Equal(dec("20")))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, tokenA, result.Failures[0].Token)

	snap, err := l.Get(d.ID)
	require.NoError(t, err)
	assert.True(t, snap.Paused)
	assert.True(t, snap.Balance.IsZero())
	assert.True(t, snap.TokenBalances[tokenA].Equal(dec("10")), "failed token balance retained")
	assert.True(t, snap.TokenBalances[tokenB].IsZero())
}

func TestMutationPrecedesTransferFailure(t *testing.T) {
	// A transfer-layer failure surfaces the error but keeps the
	// accounting mutation; callers must reconcile via the snapshot
	// instead of retrying blindly.
	l, mem, _ := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.5"), dec("5"))
	require.NoError(t, err)

	mem.FailNative = true
	_, snap, err := l.AgentSend(context.Background(), agent, d.ID, recipient, dec("0.5"), "")
	require.Error(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.Balance.Equal(dec("4.5")))
	assert.True(t, snap.SpentToday.Equal(dec("0.5")))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
}

func TestSpentTodayNeverExceedsDailyLimit(t *testing.T) {
	l, _, clock := newTestLedger(t)
	d, err := l.Create(owner, agent, dec("1"), dec("0.4"), dec("100"))
	require.NoError(t, err)

	amounts := []string{"0.4", "0.4", "0.4", "0.3", "0.2"}
	for _, a := range amounts {
		_, snap, _ := l.AgentSend(context.Background(), agent, d.ID, recipient, dec(a), "")
		if snap == nil {
			snap, _ = l.Get(d.ID)
		}
		assert.True(t, snap.SpentToday.LessThanOrEqual(snap.DailyLimit),
			"spentToday %s exceeds daily %s", snap.SpentToday, snap.DailyLimit)
		*clock = clock.Add(time.Hour)
	}
}
