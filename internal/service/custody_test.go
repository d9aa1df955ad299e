package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentvault/vaultgate/internal/guardrail"
	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/apperrors"
	"github.com/agentvault/vaultgate/internal/trust"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/agentvault/vaultgate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	agent     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixedReputation struct {
	score int
	calls int
}

func (f *fixedReputation) ResolveReputation(ctx context.Context, subject common.Address) (*model.ReputationInfo, error) {
	f.calls++
	return &model.ReputationInfo{Score: f.score}, nil
}

func newService(t *testing.T, limits guardrail.Limits, resolver *trust.Resolver) (*CustodyService, uint64) {
	t.Helper()
	ledger := vault.NewLedger(txlayer.NewMemory())
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	ledger.SetClock(func() time.Time { return now })

	d, err := ledger.Create(owner, agent, dec("10"), dec("5"), dec("10"))
	require.NoError(t, err)

	svc := NewCustodyService(ledger, resolver, limits, guardrail.NewMemorySendLog())
	svc.SetClock(func() time.Time { return now })
	return svc, d.ID
}

func TestAgentSendHappyPath(t *testing.T) {
	svc, id := newService(t, guardrail.Limits{}, nil)

	resp, err := svc.AgentSend(context.Background(), agent, id, recipient, dec("1"), "lunch")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TxRef)
	assert.Equal(t, "1", resp.SpentToday)
	assert.Equal(t, "9", resp.Balance)
}

func TestGuardrailCountCapStopsSends(t *testing.T) {
	limits := guardrail.Limits{Enabled: true, MaxTxPerHour: 2}
	svc, id := newService(t, limits, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.AgentSend(ctx, agent, id, recipient, dec("0.5"), "")
		require.NoError(t, err)
	}

	_, err := svc.AgentSend(ctx, agent, id, recipient, dec("0.5"), "")
	require.Error(t, err)
	appErr := err.(*apperrors.AppError)
	assert.Equal(t, apperrors.ErrLimitExceeded, appErr.Type)
	assert.Equal(t, apperrors.LimitCount, appErr.Limit)
}

func TestAutoApproveThresholdReturnsWithoutTransfer(t *testing.T) {
	thr := dec("1")
	limits := guardrail.Limits{Enabled: true, AutoApproveThreshold: &thr}
	svc, id := newService(t, limits, nil)

	resp, err := svc.AgentSend(context.Background(), agent, id, recipient, dec("2"), "")
	require.NoError(t, err)
	assert.True(t, resp.RequiresApproval)
	assert.Empty(t, resp.TxRef)

	// No funds moved and nothing counted against the daily window.
	d, err := svc.Ledger().Get(id)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(dec("10")))
	assert.True(t, d.SpentToday.IsZero())
}

func TestUntrustedRecipientRejected(t *testing.T) {
	rep := &fixedReputation{score: 30}
	resolver := trust.NewResolver(nil, rep, nil, trust.Policy{MinReputationScore: 50}, trust.NewCache(time.Minute, 10))
	svc, id := newService(t, guardrail.Limits{}, resolver)

	_, err := svc.AgentSend(context.Background(), agent, id, recipient, dec("1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)
	assert.Contains(t, err.Error(), "trust verification")

	d, err := svc.Ledger().Get(id)
	require.NoError(t, err)
	assert.True(t, d.Balance.Equal(dec("10")))
}

func TestWhitelistedRecipientSkipsTrust(t *testing.T) {
	rep := &fixedReputation{score: 0}
	resolver := trust.NewResolver(nil, rep, nil, trust.Policy{MinReputationScore: 50}, trust.NewCache(time.Minute, 10))
	svc, id := newService(t, guardrail.Limits{}, resolver)

	_, err := svc.Ledger().SetWhitelistEnabled(owner, id, true)
	require.NoError(t, err)
	_, err = svc.Ledger().SetWhitelistEntry(owner, id, recipient, true)
	require.NoError(t, err)

	resp, err := svc.AgentSend(context.Background(), agent, id, recipient, dec("1"), "")
	require.NoError(t, err)
	assert.True(t, resp.WhitelistedSkip)
	assert.Nil(t, resp.TrustVerdict)
	assert.Equal(t, 0, rep.calls)
}

func TestTrustVerdictCachedAcrossSends(t *testing.T) {
	rep := &fixedReputation{score: 80}
	resolver := trust.NewResolver(nil, rep, nil, trust.Policy{MinReputationScore: 50}, trust.NewCache(time.Minute, 10))
	svc, id := newService(t, guardrail.Limits{}, resolver)
	ctx := context.Background()

	first, err := svc.AgentSend(ctx, agent, id, recipient, dec("1"), "")
	require.NoError(t, err)
	assert.False(t, first.TrustFromCache)

	second, err := svc.AgentSend(ctx, agent, id, recipient, dec("1"), "")
	require.NoError(t, err)
	assert.True(t, second.TrustFromCache)
	assert.Equal(t, 1, rep.calls)
}

func TestGuardrailDenyListBeatsEverything(t *testing.T) {
	limits := guardrail.Limits{Enabled: true, DenyList: map[common.Address]bool{recipient: true}}
	svc, id := newService(t, limits, nil)

	_, err := svc.AgentSend(context.Background(), agent, id, recipient, dec("1"), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotAuthorized, err.(*apperrors.AppError).Type)
}
