package vault

import (
	"time"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/shopspring/decimal"
)

// SpendWindowDuration is the rolling accounting period after which
// spent-today resets.
const SpendWindowDuration = 24 * time.Hour

// rollWindowIfElapsed zeroes the rolling spend total and advances the
// window start once the period has elapsed. Must run before any limit
// evaluation so a stale window never rejects a valid send.
func rollWindowIfElapsed(d *model.Delegation, now time.Time) bool {
	if now.Sub(d.WindowStart) < SpendWindowDuration {
		return false
	}
	d.SpentToday = decimal.Zero
	d.WindowStart = now
	return true
}
