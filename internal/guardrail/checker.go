// Package guardrail applies local, registry-free transaction policy:
// rolling count caps, a hard value cap, an auto-approve threshold and
// recipient allow/deny lists. Checks are pure functions over the
// caller-supplied send history so they stay trivially testable.
package guardrail

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Limits is the guardrail policy. Zero-valued caps are disabled.
type Limits struct {
	Enabled      bool
	MaxTxPerHour int
	MaxTxPerDay  int

	// MaxValue rejects outright; AutoApproveThreshold only escalates to
	// manual approval.
	MaxValue             *decimal.Decimal
	AutoApproveThreshold *decimal.Decimal

	AllowList map[common.Address]bool
	DenyList  map[common.Address]bool
}

// Decision is the outcome of a guardrail check.
type Decision struct {
	Allowed          bool
	RequiresApproval bool
	Reason           string
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func rejected(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Check evaluates value against the count caps and value limits given
// the timestamps of recent sends. recentSends may contain entries older
// than 24h; they are ignored.
func Check(limits Limits, recentSends []time.Time, value decimal.Decimal, now time.Time) Decision {
	if !limits.Enabled {
		return allowed()
	}

	// 1. Rolling count caps.
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	lastHour, lastDay := 0, 0
	for _, at := range recentSends {
		if at.After(dayAgo) {
			lastDay++
			if at.After(hourAgo) {
				lastHour++
			}
		}
	}
	if limits.MaxTxPerHour > 0 && lastHour >= limits.MaxTxPerHour {
		return rejected(fmt.Sprintf("hourly transaction cap reached: %d in the last hour, limit %d", lastHour, limits.MaxTxPerHour))
	}
	if limits.MaxTxPerDay > 0 && lastDay >= limits.MaxTxPerDay {
		return rejected(fmt.Sprintf("daily transaction cap reached: %d in the last 24h, limit %d", lastDay, limits.MaxTxPerDay))
	}

	// 2. Hard value cap.
	if limits.MaxValue != nil && value.GreaterThan(*limits.MaxValue) {
		return rejected(fmt.Sprintf("value %s exceeds maximum %s", value.String(), limits.MaxValue.String()))
	}

	// 3. Auto-approve threshold: over it the send is allowed but must be
	// approved by a human before submission.
	if limits.AutoApproveThreshold != nil && value.GreaterThan(*limits.AutoApproveThreshold) {
		return Decision{
			Allowed:          true,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("value %s above auto-approve threshold %s", value.String(), limits.AutoApproveThreshold.String()),
		}
	}

	return allowed()
}

// CheckRecipient evaluates the allow/deny lists. Deny always wins; a
// non-empty allow list switches to default-deny for everyone not on it.
func CheckRecipient(limits Limits, recipient common.Address) Decision {
	if !limits.Enabled {
		return allowed()
	}
	if limits.DenyList[recipient] {
		return rejected("recipient is on the guardrail deny list")
	}
	if len(limits.AllowList) > 0 && !limits.AllowList[recipient] {
		return rejected("recipient is not on the guardrail allow list")
	}
	return allowed()
}
