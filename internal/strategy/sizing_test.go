package strategy

import (
	"testing"

	"github.com/mholloway/rtx-paperbot/internal/config"
	"github.com/mholloway/rtx-paperbot/internal/ledger"
)

func sizingProfile() *config.StrategyConfig {
	return &config.StrategyConfig{
		ID:            "test",
		KellyFraction: 0.50,
		AllocationPct: 0.20,
		MaxContracts:  10,
	}
}

func TestContractsFor(t *testing.T) {
	comm := ledger.CommissionSchedule{PerContract: 0.65, PerTrade: 0.50, Minimum: 1.00}

	tests := []struct {
		name       string
		balance    float64
		ask        float64
		confidence float64
		want       int
	}{
		// edge 2*0.9-1=0.8, fraction min(0.5*0.8, 0.2)=0.2, budget 1000, 4 fit with commission
		{"allocation cap binds", 5000, 2.00, 0.90, 4},
		// edge 0.2, fraction 0.1, budget 500 -> 2 contracts at $2.00
		{"kelly scales with confidence", 5000, 2.00, 0.60, 2},
		{"coin flip sizes to zero", 5000, 2.00, 0.50, 0},
		{"bearish-of-even sizes to zero", 5000, 2.00, 0.30, 0},
		{"budget below one contract", 500, 2.00, 0.60, 0},
		{"zero balance", 0, 2.00, 0.90, 0},
		{"zero ask", 5000, 0, 0.90, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContractsFor(tt.balance, tt.ask, tt.confidence, sizingProfile(), comm)
			if got != tt.want {
				t.Errorf("ContractsFor(bal=%.0f ask=%.2f conf=%.2f) = %d, want %d",
					tt.balance, tt.ask, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestContractsForMaxContractsCap(t *testing.T) {
	comm := ledger.CommissionSchedule{PerContract: 0.65, PerTrade: 0.50, Minimum: 1.00}
	profile := sizingProfile()
	profile.MaxContracts = 3

	// Uncapped sizing would take more than 3 cheap contracts.
	got := ContractsFor(50000, 0.50, 0.95, profile, comm)
	if got != 3 {
		t.Errorf("ContractsFor = %d, want hard cap 3", got)
	}
}

func TestContractsForCommissionFitsBudget(t *testing.T) {
	comm := ledger.CommissionSchedule{PerContract: 0.65, PerTrade: 0.50, Minimum: 1.00}
	profile := sizingProfile()
	profile.MaxContracts = 100

	// Budget exactly one contract's premium: commission pushes it over, so
	// sizing backs off to zero rather than overdrawing.
	got := ContractsFor(2000, 2.00, 0.60, profile, comm)
	if got != 0 {
		t.Errorf("sizing exceeded budget: %d contracts", got)
	}
}
