package ledger

import (
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// evaluateExit applies the exit conditions to an open position in priority
// order, first match wins:
//
//  1. PROFIT_TARGET: mid >= entry * (1 + profit target pct)
//  2. STOP_LOSS:     mid <= entry * (1 - stop loss pct)
//  3. TIME_DECAY:    one calendar day or less to expiry
//  4. MAX_HOLD_TIME: held for at least a quarter of the original DTE
//
// Returns "" when no condition fires and the position stays open.
func evaluateExit(pos *models.Position, mid float64, now time.Time) models.ExitReason {
	entry := pos.Entry.Price
	pred := pos.Prediction

	if mid >= entry*(1+pred.ProfitTargetPct) {
		return models.ExitProfitTarget
	}
	if mid <= entry*(1-pred.StopLossPct) {
		return models.ExitStopLoss
	}
	if pos.DTE(now) <= 1 {
		return models.ExitTimeDecay
	}
	if pos.DaysHeld(now) >= pos.MaxHoldDays() {
		return models.ExitMaxHoldTime
	}
	return ""
}
