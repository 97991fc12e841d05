package strategy

import (
	"math"

	"github.com/mholloway/rtx-paperbot/internal/config"
	"github.com/mholloway/rtx-paperbot/internal/ledger"
)

// ContractsFor sizes a trade for one strategy profile. The Kelly edge is
// derived from signal confidence (0.5 is a coin flip and sizes to zero),
// scaled by the profile's kelly fraction, then capped by the allocation
// ceiling and the hard per-trade contract limit. Commission is included in
// the budget so a maximally sized trade still clears the affordability check.
func ContractsFor(balance, ask, confidence float64, s *config.StrategyConfig, comm ledger.CommissionSchedule) int {
	if balance <= 0 || ask <= 0 {
		return 0
	}

	edge := 2*confidence - 1
	if edge <= 0 {
		return 0
	}

	fraction := s.KellyFraction * edge
	if fraction > s.AllocationPct {
		fraction = s.AllocationPct
	}
	budget := balance * fraction

	perContract := ask * 100
	if perContract <= 0 {
		return 0
	}
	contracts := int(math.Floor(budget / perContract))

	// Back off until premium plus commission fits the budget.
	for contracts > 0 && float64(contracts)*perContract+comm.Commission(contracts) > budget {
		contracts--
	}
	if contracts > s.MaxContracts {
		contracts = s.MaxContracts
	}
	return contracts
}
