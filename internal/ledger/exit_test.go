package ledger

import (
	"testing"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

func exitTestPosition(entryPrice float64, daysToExpiry, daysHeld int, now time.Time) *models.Position {
	entryTime := now.AddDate(0, 0, -daysHeld)
	return &models.Position{
		Prediction: models.Prediction{
			ID:              "p1",
			ContractSymbol:  testContract,
			DaysToExpiry:    daysToExpiry,
			Expiry:          entryTime.AddDate(0, 0, daysToExpiry),
			ProfitTargetPct: 0.50,
			StopLossPct:     0.25,
		},
		Entry:     models.Execution{Action: models.ActionOpen, Price: entryPrice},
		EntryTime: entryTime,
		Status:    models.StatusOpen,
	}
}

func TestEvaluateExit(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		mid          float64
		daysToExpiry int
		daysHeld     int
		want         models.ExitReason
	}{
		{
			name:         "no condition fires",
			mid:          2.20,
			daysToExpiry: 40,
			daysHeld:     2,
			want:         "",
		},
		{
			name:         "profit target at exact boundary",
			mid:          3.00, // entry 2.00 * 1.5
			daysToExpiry: 40,
			daysHeld:     2,
			want:         models.ExitProfitTarget,
		},
		{
			name:         "stop loss at exact boundary",
			mid:          1.50, // entry 2.00 * 0.75
			daysToExpiry: 40,
			daysHeld:     2,
			want:         models.ExitStopLoss,
		},
		{
			name:         "time decay one day to expiry",
			mid:          2.20,
			daysToExpiry: 3,
			daysHeld:     2,
			want:         models.ExitTimeDecay,
		},
		{
			name:         "max hold time quarter of original dte",
			mid:          2.20,
			daysToExpiry: 40,
			daysHeld:     10,
			want:         models.ExitMaxHoldTime,
		},
		{
			name:         "profit target beats time decay",
			mid:          3.50,
			daysToExpiry: 3,
			daysHeld:     2,
			want:         models.ExitProfitTarget,
		},
		{
			name:         "stop loss beats time decay",
			mid:          1.20,
			daysToExpiry: 3,
			daysHeld:     2,
			want:         models.ExitStopLoss,
		},
		{
			name:         "profit target beats max hold",
			mid:          3.50,
			daysToExpiry: 40,
			daysHeld:     15,
			want:         models.ExitProfitTarget,
		},
		{
			name:         "time decay beats max hold",
			mid:          2.20,
			daysToExpiry: 8,
			daysHeld:     7,
			want:         models.ExitTimeDecay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := exitTestPosition(2.00, tt.daysToExpiry, tt.daysHeld, now)
			got := evaluateExit(pos, tt.mid, now)
			if got != tt.want {
				t.Errorf("evaluateExit(mid=%.2f dte=%d held=%d) = %q, want %q",
					tt.mid, tt.daysToExpiry, tt.daysHeld, got, tt.want)
			}
		})
	}
}

func TestEvaluateExitIsDeterministic(t *testing.T) {
	// Same inputs always give the same reason, regardless of call count.
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	pos := exitTestPosition(2.00, 3, 2, now)

	first := evaluateExit(pos, 3.50, now)
	for i := 0; i < 10; i++ {
		if got := evaluateExit(pos, 3.50, now); got != first {
			t.Fatalf("evaluation changed between calls: %q then %q", first, got)
		}
	}
}

func TestMaxHoldDaysFloor(t *testing.T) {
	tests := []struct {
		daysToExpiry int
		want         int
	}{
		{2, 1}, // quarter rounds down to 0, floored to 1
		{4, 1},
		{8, 2},
		{40, 10},
		{45, 11},
	}
	for _, tt := range tests {
		pos := &models.Position{Prediction: models.Prediction{DaysToExpiry: tt.daysToExpiry}}
		if got := pos.MaxHoldDays(); got != tt.want {
			t.Errorf("MaxHoldDays(dte=%d) = %d, want %d", tt.daysToExpiry, got, tt.want)
		}
	}
}
