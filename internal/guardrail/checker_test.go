package guardrail

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	friend   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	stranger = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestDisabledAllowsEverything(t *testing.T) {
	limits := Limits{
		MaxTxPerHour: 1,
		MaxValue:     decPtr("0.001"),
		DenyList:     map[common.Address]bool{stranger: true},
	}
	now := time.Now()

	d := Check(limits, []time.Time{now, now}, dec("1000"), now)
	assert.True(t, d.Allowed)
	assert.True(t, CheckRecipient(limits, stranger).Allowed)
}

func TestHourlyCountCap(t *testing.T) {
	limits := Limits{Enabled: true, MaxTxPerHour: 2}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	recent := []time.Time{now.Add(-10 * time.Minute)}
	d := Check(limits, recent, dec("1"), now)
	assert.True(t, d.Allowed)

	recent = append(recent, now.Add(-5*time.Minute))
	d = Check(limits, recent, dec("1"), now)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "hourly")

	// Sends older than an hour do not count against the hourly cap.
	recent = []time.Time{now.Add(-2 * time.Hour), now.Add(-90 * time.Minute)}
	d = Check(limits, recent, dec("1"), now)
	assert.True(t, d.Allowed)
}

func TestDailyCountCap(t *testing.T) {
	limits := Limits{Enabled: true, MaxTxPerDay: 3}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	recent := []time.Time{
		now.Add(-23 * time.Hour),
		now.Add(-12 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(-25 * time.Hour), // outside the window
	}
	d := Check(limits, recent, dec("1"), now)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "daily")

	d = Check(limits, recent[1:], dec("1"), now)
	assert.True(t, d.Allowed)
}

func TestValueCap(t *testing.T) {
	limits := Limits{Enabled: true, MaxValue: decPtr("5")}
	now := time.Now()

	assert.True(t, Check(limits, nil, dec("5"), now).Allowed)

	d := Check(limits, nil, dec("5.01"), now)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "5.01")
}

func TestAutoApproveThreshold(t *testing.T) {
	limits := Limits{Enabled: true, AutoApproveThreshold: decPtr("1")}
	now := time.Now()

	d := Check(limits, nil, dec("0.5"), now)
	assert.True(t, d.Allowed)
	assert.False(t, d.RequiresApproval)

	d = Check(limits, nil, dec("2"), now)
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresApproval)
	assert.NotEmpty(t, d.Reason)
}

func TestRecipientLists(t *testing.T) {
	// Deny wins even over an allow-list entry.
	limits := Limits{
		Enabled:   true,
		AllowList: map[common.Address]bool{friend: true, stranger: true},
		DenyList:  map[common.Address]bool{stranger: true},
	}
	assert.True(t, CheckRecipient(limits, friend).Allowed)
	assert.False(t, CheckRecipient(limits, stranger).Allowed)

	// Non-empty allow list means default-deny.
	limits = Limits{Enabled: true, AllowList: map[common.Address]bool{friend: true}}
	assert.False(t, CheckRecipient(limits, stranger).Allowed)

	// Empty lists allow everyone.
	limits = Limits{Enabled: true}
	assert.True(t, CheckRecipient(limits, stranger).Allowed)
}

func TestMemorySendLog(t *testing.T) {
	log := NewMemorySendLog()
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Record(ctx, 1, now.Add(-2*time.Hour)))
	require.NoError(t, log.Record(ctx, 1, now.Add(-10*time.Minute)))
	require.NoError(t, log.Record(ctx, 2, now))

	recent, err := log.Recent(ctx, 1, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	all, err := log.Recent(ctx, 1, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
