package guardrail

import (
	"context"
	"sync"
	"time"
)

// SendLog records when a delegation last sent, feeding the rolling count
// caps. Implementations exist in memory and on Redis.
type SendLog interface {
	Record(ctx context.Context, delegationID uint64, at time.Time) error
	Recent(ctx context.Context, delegationID uint64, since time.Time) ([]time.Time, error)
}

// MemorySendLog keeps send timestamps per delegation in process memory.
// Entries older than the retention window are pruned on write.
type MemorySendLog struct {
	mu        sync.Mutex
	sends     map[uint64][]time.Time
	retention time.Duration
}

func NewMemorySendLog() *MemorySendLog {
	return &MemorySendLog{
		sends:     make(map[uint64][]time.Time),
		retention: 24 * time.Hour,
	}
}

func (l *MemorySendLog) Record(ctx context.Context, delegationID uint64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := at.Add(-l.retention)
	kept := l.sends[delegationID][:0]
	for _, t := range l.sends[delegationID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.sends[delegationID] = append(kept, at)
	return nil
}

func (l *MemorySendLog) Recent(ctx context.Context, delegationID uint64, since time.Time) ([]time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []time.Time
	for _, t := range l.sends[delegationID] {
		if t.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}
