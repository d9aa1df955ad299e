package trust

import (
	"fmt"
	"testing"
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func verdictFor(subject common.Address, trusted bool) model.TrustVerdict {
	return model.TrustVerdict{
		Subject:   subject,
		IsTrusted: trusted,
		Reasons:   []string{"test"},
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute, 10)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set(addr(0), verdictFor(addr(0), true))

	_, ok := c.Get(addr(0))
	assert.True(t, ok)

	now = now.Add(61 * time.Second)
	_, ok = c.Get(addr(0))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry removed on access")
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewCache(time.Hour, 3)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		c.Set(addr(i), verdictFor(addr(i), true))
		now = now.Add(time.Second)
	}
	c.Set(addr(3), verdictFor(addr(3), true))

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get(addr(0))
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get(addr(3))
	assert.True(t, ok)
}

func TestCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewCache(time.Hour, 2)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set(addr(0), verdictFor(addr(0), true))
	c.Set(addr(1), verdictFor(addr(1), true))
	c.Set(addr(0), verdictFor(addr(0), false))

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get(addr(1))
	require.True(t, ok)
	assert.True(t, got.IsTrusted)
}

func TestCacheInvalidateAndClear(t *testing.T) {
	c := NewCache(time.Hour, 10)
	c.Set(addr(0), verdictFor(addr(0), true))
	c.Set(addr(1), verdictFor(addr(1), true))

	c.Invalidate(addr(0))
	_, ok := c.Get(addr(0))
	assert.False(t, ok)
	_, ok = c.Get(addr(1))
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheExportImport(t *testing.T) {
	c := NewCache(time.Hour, 10)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set(addr(0), verdictFor(addr(0), true))
	now = now.Add(time.Second)
	c.Set(addr(1), verdictFor(addr(1), false))

	exported := c.Export()
	require.Len(t, exported, 2)
	assert.Equal(t, addr(0), exported[0].Subject, "export ordered oldest first")

	c2 := NewCache(time.Hour, 10)
	c2.SetClock(func() time.Time { return now })
	c2.Import(exported)

	got, ok := c2.Get(addr(1))
	require.True(t, ok)
	assert.False(t, got.IsTrusted)
	assert.Equal(t, 2, c2.Len())
}
