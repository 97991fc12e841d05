package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// PerformanceSummary aggregates closed-trade results for one strategy.
// ProfitFactorDefined is false until at least one losing trade exists; the
// ratio is meaningless before that and no magic sentinel is reported.
type PerformanceSummary struct {
	Strategy            string  `json:"strategy"`
	TotalTrades         int     `json:"total_trades"`
	WinningTrades       int     `json:"winning_trades"`
	LosingTrades        int     `json:"losing_trades"`
	WinRate             float64 `json:"win_rate"`
	TotalNetPnL         float64 `json:"total_net_pnl"`
	AvgNetPnL           float64 `json:"avg_net_pnl"`
	BestTrade           float64 `json:"best_trade"`
	WorstTrade          float64 `json:"worst_trade"`
	GrossWins           float64 `json:"gross_wins"`
	GrossLosses         float64 `json:"gross_losses"`
	ProfitFactor        float64 `json:"profit_factor"`
	ProfitFactorDefined bool    `json:"profit_factor_defined"`
	Balance             float64 `json:"balance"`
}

// OpenPositionView is a display-oriented projection of one open position.
// When the current quote is unavailable the unrealized fields report zero.
type OpenPositionView struct {
	PredictionID   string  `json:"prediction_id"`
	ContractSymbol string  `json:"contract_symbol"`
	Direction      string  `json:"direction"`
	Contracts      int     `json:"contracts"`
	EntryPrice     float64 `json:"entry_price"`
	CurrentMid     float64 `json:"current_mid"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	UnrealizedPct  float64 `json:"unrealized_pct"`
	DaysHeld       int     `json:"days_held"`
	DTE            int     `json:"dte"`
	QuoteAvailable bool    `json:"quote_available"`
}

// PerformanceSummary is a pure read aggregation over options_outcomes.
func (t *PaperTrader) PerformanceSummary(ctx context.Context) (*PerformanceSummary, error) {
	s := &PerformanceSummary{Strategy: t.cfg.Strategy, Balance: t.Balance()}

	var (
		total, wins                              sql.NullInt64
		netSum, best, worst, grossWin, grossLoss sql.NullFloat64
	)
	err := t.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		SUM(CASE WHEN net_pnl > 0 THEN 1 ELSE 0 END),
		SUM(net_pnl),
		MAX(net_pnl),
		MIN(net_pnl),
		SUM(CASE WHEN net_pnl > 0 THEN net_pnl ELSE 0 END),
		SUM(CASE WHEN net_pnl < 0 THEN net_pnl ELSE 0 END)
		FROM options_outcomes`).Scan(&total, &wins, &netSum, &best, &worst, &grossWin, &grossLoss)
	if err != nil {
		return nil, fmt.Errorf("aggregating outcomes: %w", err)
	}

	s.TotalTrades = int(total.Int64)
	s.WinningTrades = int(wins.Int64)
	s.LosingTrades = s.TotalTrades - s.WinningTrades
	s.TotalNetPnL = netSum.Float64
	s.BestTrade = best.Float64
	s.WorstTrade = worst.Float64
	s.GrossWins = grossWin.Float64
	s.GrossLosses = -grossLoss.Float64

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
		s.AvgNetPnL = s.TotalNetPnL / float64(s.TotalTrades)
	}
	if s.GrossLosses > 0 {
		s.ProfitFactor = s.GrossWins / s.GrossLosses
		s.ProfitFactorDefined = true
	}

	return s, nil
}

// OpenPositionsSummary returns a best-effort view of every open position with
// its current unrealized P&L. Quote failures degrade to a zeroed view rather
// than failing the whole summary.
func (t *PaperTrader) OpenPositionsSummary(ctx context.Context) []OpenPositionView {
	positions := t.OpenPositions()
	now := t.nowFn()

	views := make([]OpenPositionView, 0, len(positions))
	for i := range positions {
		pos := &positions[i]
		view := OpenPositionView{
			PredictionID:   pos.Prediction.ID,
			ContractSymbol: pos.Prediction.ContractSymbol,
			Direction:      string(pos.Prediction.Direction),
			Contracts:      pos.Prediction.Contracts,
			EntryPrice:     pos.Entry.Price,
			DaysHeld:       pos.DaysHeld(now),
			DTE:            pos.DTE(now),
		}

		quote, err := t.quotes.GetOptionQuote(ctx, pos.Prediction.ContractSymbol)
		if err == nil && quote != nil && quote.Ask > 0 {
			mid := quote.Mid
			if mid == 0 {
				mid = (quote.Bid + quote.Ask) / 2
			}
			view.CurrentMid = mid
			view.QuoteAvailable = true
			view.UnrealizedPnL = (mid - pos.Entry.Price) * models.SharesPerContract * float64(pos.Prediction.Contracts)
			if basis := pos.CostBasis(); basis > 0 {
				view.UnrealizedPct = view.UnrealizedPnL / basis
			}
		}

		views = append(views, view)
	}
	return views
}

// History returns the most recent closed-trade outcomes, newest first.
func (t *PaperTrader) History(ctx context.Context, limit int) ([]models.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx, `SELECT prediction_id, exit_timestamp,
		exit_price, exit_reason, days_held, entry_cost, exit_proceeds, gross_pnl,
		commissions_total, net_pnl, pnl_percentage, stock_price_exit, prediction_accuracy
		FROM options_outcomes ORDER BY outcome_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading outcome history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Outcome
	for rows.Next() {
		var o models.Outcome
		var reason string
		if err := rows.Scan(&o.PredictionID, &o.ExitTimestamp, &o.ExitPrice, &reason,
			&o.DaysHeld, &o.EntryCost, &o.ExitProceeds, &o.GrossPnL, &o.CommissionsTotal,
			&o.NetPnL, &o.PnLPercentage, &o.StockPriceExit, &o.PredictionAccuracy); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.ExitReason = models.ExitReason(reason)
		out = append(out, o)
	}
	return out, rows.Err()
}
