package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/ledger"
	"github.com/mholloway/rtx-paperbot/internal/models"
	"github.com/mholloway/rtx-paperbot/internal/strategy"
)

// Reporter formats trade events and daily digests and hands them to a
// Sender. Send failures are logged, never propagated into the trading loop.
type Reporter struct {
	sender  Sender
	traders map[string]*ledger.PaperTrader
	logger  *logrus.Logger
}

var _ strategy.Notifier = (*Reporter)(nil)

// NewReporter wires a reporter over the given sender and the per-strategy
// traders used for the daily digest.
func NewReporter(sender Sender, traders map[string]*ledger.PaperTrader, logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reporter{sender: sender, traders: traders, logger: logger}
}

// TradeOpened implements strategy.Notifier.
func (r *Reporter) TradeOpened(strategyID string, pred models.Prediction, balance float64) {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *Opened* [%s]\n", strategyID)
	fmt.Fprintf(&b, "`%s` %s x%d @ $%.2f\n", pred.ContractSymbol, pred.OptionType, pred.Contracts, pred.EntryPrice)
	fmt.Fprintf(&b, "Direction: %s (%.0f%% confidence)\n", pred.Direction, pred.Confidence*100)
	fmt.Fprintf(&b, "Target: $%.2f  Stop: $%.2f  DTE: %d\n", pred.ProfitTargetPrice, pred.StopLossPrice, pred.DaysToExpiry)
	fmt.Fprintf(&b, "Cost: $%.2f  Balance: $%.2f", pred.TotalCost, balance)
	r.deliver(b.String())
}

// ExitActions implements strategy.Notifier.
func (r *Reporter) ExitActions(strategyID string, actions []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "📉 *Closed* [%s]\n", strategyID)
	for _, a := range actions {
		fmt.Fprintf(&b, "• %s\n", a)
	}
	r.deliver(strings.TrimRight(b.String(), "\n"))
}

// DailyDigest implements strategy.Notifier. One section per strategy with
// the closed-trade aggregates and current open exposure.
func (r *Reporter) DailyDigest(ctx context.Context) {
	var b strings.Builder
	b.WriteString("📊 *Daily Summary*\n")

	ids := make([]string, 0, len(r.traders))
	for id := range r.traders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		trader := r.traders[id]
		summary, err := trader.PerformanceSummary(ctx)
		if err != nil {
			r.logger.WithError(err).WithField("strategy", id).Warn("digest summary failed")
			continue
		}
		fmt.Fprintf(&b, "\n*%s*  balance $%.2f\n", id, summary.Balance)
		fmt.Fprintf(&b, "Trades: %d  Win rate: %.0f%%  Net P&L: $%.2f\n",
			summary.TotalTrades, summary.WinRate*100, summary.TotalNetPnL)
		if summary.ProfitFactorDefined {
			fmt.Fprintf(&b, "Profit factor: %.2f\n", summary.ProfitFactor)
		} else {
			b.WriteString("Profit factor: n/a (no losing trades yet)\n")
		}

		open := trader.OpenPositionsSummary(ctx)
		fmt.Fprintf(&b, "Open positions: %d\n", len(open))
		for i := range open {
			v := &open[i]
			if v.QuoteAvailable {
				fmt.Fprintf(&b, "• `%s` x%d  unrealized $%.2f (%.1f%%)\n",
					v.ContractSymbol, v.Contracts, v.UnrealizedPnL, v.UnrealizedPct*100)
			} else {
				fmt.Fprintf(&b, "• `%s` x%d  (no quote)\n", v.ContractSymbol, v.Contracts)
			}
		}
	}
	r.deliver(strings.TrimRight(b.String(), "\n"))
}

func (r *Reporter) deliver(text string) {
	if r.sender == nil {
		return
	}
	if err := r.sender.Send(text); err != nil {
		r.logger.WithError(err).Warn("report delivery failed")
	}
}
