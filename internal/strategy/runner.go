package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mholloway/rtx-paperbot/internal/config"
	"github.com/mholloway/rtx-paperbot/internal/ledger"
	"github.com/mholloway/rtx-paperbot/internal/models"
)

// MarketData is the slice of the market data engine the runner needs.
type MarketData interface {
	GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error)
	TradeableContracts(ctx context.Context, symbol string) (map[string]models.OptionContract, error)
}

// Notifier receives trade events for external reporting. Implementations
// must not block the trading cycle.
type Notifier interface {
	TradeOpened(strategyID string, pred models.Prediction, balance float64)
	ExitActions(strategyID string, actions []string)
	DailyDigest(ctx context.Context)
}

// Runner drives the trading loop: one cycle per check interval during
// trading hours, with each strategy profile evaluated concurrently against
// the same market snapshot.
type Runner struct {
	cfg      *config.Config
	market   MarketData
	traders  map[string]*ledger.PaperTrader
	signals  []Signal
	notifier Notifier
	logger   *logrus.Logger

	nowFn         func() time.Time
	lastDigestDay string
}

// NewRunner wires the trading loop. Traders are keyed by strategy ID and
// must cover every strategy in the config.
func NewRunner(cfg *config.Config, market MarketData, traders map[string]*ledger.PaperTrader,
	notifier Notifier, logger *logrus.Logger) (*Runner, error) {
	if logger == nil {
		logger = logrus.New()
	}
	for i := range cfg.Strategies {
		if _, ok := traders[cfg.Strategies[i].ID]; !ok {
			return nil, fmt.Errorf("no trader for strategy %q", cfg.Strategies[i].ID)
		}
	}
	return &Runner{
		cfg:      cfg,
		market:   market,
		traders:  traders,
		signals:  DefaultSignals(),
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, executing one cycle immediately and
// then one per check interval.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.GetCheckInterval()
	r.logger.WithFields(logrus.Fields{
		"symbol":     r.cfg.Symbol,
		"interval":   interval,
		"strategies": len(r.cfg.Strategies),
	}).Info("starting trading loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("trading loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	now := r.nowFn()
	if r.cfg.IsWithinTradingHours(now) {
		if err := r.RunCycle(ctx); err != nil {
			r.logger.WithError(err).Error("trading cycle failed")
		}
	} else {
		r.logger.Debug("outside trading hours, skipping cycle")
	}
	r.maybeDigest(ctx, now)
}

// RunCycle takes one market snapshot, fuses the signals, and evaluates every
// strategy profile against it concurrently. Per-strategy failures are logged
// and do not abort the other strategies.
func (r *Runner) RunCycle(ctx context.Context) error {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("building market snapshot: %w", err)
	}

	fused, signalsJSON := Fuse(r.signals, snap)
	r.logger.WithFields(logrus.Fields{
		"underlying": snap.Underlying.Last,
		"contracts":  len(snap.Contracts),
		"direction":  fused.Direction,
		"confidence": fused.Confidence,
	}).Info("cycle snapshot")

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.cfg.Strategies {
		s := &r.cfg.Strategies[i]
		trader := r.traders[s.ID]
		g.Go(func() error {
			r.runStrategy(gctx, s, trader, snap, fused, signalsJSON)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) snapshot(ctx context.Context) (*Snapshot, error) {
	underlying, err := r.market.GetUnderlyingQuote(ctx, r.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("underlying quote: %w", err)
	}
	contracts, err := r.market.TradeableContracts(ctx, r.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("tradeable contracts: %w", err)
	}
	return &Snapshot{
		Underlying: *underlying,
		Contracts:  contracts,
		Time:       r.nowFn(),
	}, nil
}

func (r *Runner) runStrategy(ctx context.Context, s *config.StrategyConfig,
	trader *ledger.PaperTrader, snap *Snapshot, fused Score, signalsJSON string) {
	log := r.logger.WithField("strategy", s.ID)

	// Exits first so freed capital is available for a same-cycle entry.
	if actions := trader.CheckPositions(ctx); len(actions) > 0 {
		log.WithField("actions", len(actions)).Info("exit conditions fired")
		if r.notifier != nil {
			r.notifier.ExitActions(s.ID, actions)
		}
	}

	if fused.Confidence < s.MinConfidence {
		log.WithField("confidence", fused.Confidence).Debug("confidence below entry threshold")
		return
	}

	open := trader.OpenPositions()
	if len(open) >= s.MaxOpenPositions {
		log.Debug("at max open positions")
		return
	}

	contract := r.selectContract(snap, s, fused.Direction)
	if contract == nil {
		log.Debug("no suitable contract in chain")
		return
	}
	for i := range open {
		if open[i].Prediction.ContractSymbol == contract.Symbol {
			log.WithField("contract", contract.Symbol).Debug("already holding contract")
			return
		}
	}

	comm := r.cfg.LedgerConfig(s).Commission
	contracts := ContractsFor(trader.Balance(), contract.Ask, fused.Confidence, s, comm)
	if contracts == 0 {
		log.Debug("sizing produced zero contracts")
		return
	}

	pred := r.buildPrediction(s, snap, contract, fused, signalsJSON, contracts, comm)
	if err := trader.OpenPosition(ctx, pred); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			log.WithError(err).Warn("entry skipped, insufficient funds")
			return
		}
		log.WithError(err).Error("opening position failed")
		return
	}

	if r.notifier != nil {
		r.notifier.TradeOpened(s.ID, pred, trader.Balance())
	}
}

// selectContract picks the nearest out-of-the-money strike of the right type
// within the profile's DTE window; open interest breaks ties.
func (r *Runner) selectContract(snap *Snapshot, s *config.StrategyConfig, direction models.Direction) *models.OptionContract {
	wantType := direction.OptionTypeFor()
	spot := snap.Underlying.Last

	minDTE, maxDTE := 0, int(^uint(0)>>1)
	if len(s.TargetDTE) == 2 {
		minDTE, maxDTE = s.TargetDTE[0], s.TargetDTE[1]
	}

	var candidates []models.OptionContract
	for _, c := range snap.Contracts {
		if c.OptionType != wantType {
			continue
		}
		if dte := c.DTE(snap.Time); dte < minDTE || dte > maxDTE {
			continue
		}
		if c.Ask <= 0 {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil
	}

	otm := func(c *models.OptionContract) bool {
		if c.OptionType == models.OptionTypeCall {
			return c.Strike >= spot
		}
		return c.Strike <= spot
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if ao, bo := otm(a), otm(b); ao != bo {
			return ao
		}
		da, db := math.Abs(a.Strike-spot), math.Abs(b.Strike-spot)
		if da != db {
			return da < db
		}
		return a.OpenInterest > b.OpenInterest
	})
	return &candidates[0]
}

func (r *Runner) buildPrediction(s *config.StrategyConfig, snap *Snapshot,
	contract *models.OptionContract, fused Score, signalsJSON string,
	contracts int, comm ledger.CommissionSchedule) models.Prediction {
	now := r.nowFn()
	premium := contract.Ask * models.SharesPerContract * float64(contracts)
	totalCost := premium + comm.Commission(contracts)

	return models.Prediction{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Symbol:         r.cfg.Symbol,
		ContractSymbol: contract.Symbol,
		OptionType:     contract.OptionType,
		Strike:         contract.Strike,
		Expiry:         contract.Expiration,
		DaysToExpiry:   contract.DTE(now),
		Direction:      fused.Direction,
		Confidence:     fused.Confidence,

		EntryPrice: contract.Ask,
		Contracts:  contracts,
		TotalCost:  totalCost,

		ProfitTargetPct:   s.ProfitTargetPct,
		StopLossPct:       s.StopLossPct,
		ProfitTargetPrice: contract.Ask * (1 + s.ProfitTargetPct),
		StopLossPrice:     contract.Ask * (1 - s.StopLossPct),
		MaxLossDollars:    premium * s.StopLossPct,

		ExpectedMove:      snap.Underlying.Last * 0.01 * fused.Confidence,
		ExpectedProfitPct: s.ProfitTargetPct,
		Greeks:            contract.Greeks,
		StockPriceEntry:   snap.Underlying.Last,
		Volume:            contract.Volume,
		OpenInterest:      contract.OpenInterest,

		SignalsData: signalsJSON,
		Reasoning: fmt.Sprintf("%s with %.0f%% confidence, %d DTE %s at strike %.2f",
			fused.Direction, fused.Confidence*100, contract.DTE(now), contract.OptionType, contract.Strike),
	}
}

// maybeDigest fires the daily report once per calendar day at or after the
// configured time.
func (r *Runner) maybeDigest(ctx context.Context, now time.Time) {
	at := r.cfg.Schedule.DailyReport
	if at == "" || r.notifier == nil {
		return
	}
	clock, err := time.Parse("15:04", at)
	if err != nil {
		return
	}
	day := now.Format("2006-01-02")
	if day == r.lastDigestDay {
		return
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if now.Before(due) {
		return
	}
	r.lastDigestDay = day
	r.notifier.DailyDigest(ctx)
}
