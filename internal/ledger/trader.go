// Package ledger implements the paper-trading execution engine and its
// SQLite-backed trade ledger. One PaperTrader owns the position lifecycle
// (open -> monitor -> close), the commission/slippage simulation, and the
// balance-consistent audit trail for a single strategy.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// QuoteSource supplies the current bid/ask for a contract. Implementations
// must return an error (not zeroed quotes) when data is unavailable.
type QuoteSource interface {
	GetOptionQuote(ctx context.Context, contractSymbol string) (*models.Quote, error)
}

// CommissionSchedule models per-contract plus flat per-trade fees with a
// minimum charge per execution.
type CommissionSchedule struct {
	PerContract float64 `yaml:"per_contract"`
	PerTrade    float64 `yaml:"per_trade"`
	Minimum     float64 `yaml:"minimum"`
}

// Commission returns the fee for executing the given number of contracts.
// It is non-decreasing in contracts and never below the configured minimum.
func (c CommissionSchedule) Commission(contracts int) float64 {
	fee := c.PerContract*float64(contracts) + c.PerTrade
	if fee < c.Minimum {
		return c.Minimum
	}
	return fee
}

// SlippageModel applies a flat adverse price adjustment to clips larger than
// the threshold: added to the ask on opens, subtracted from the bid on closes.
type SlippageModel struct {
	ContractThreshold int     `yaml:"contract_threshold"`
	Pct               float64 `yaml:"pct"`
}

// Amount returns the per-share slippage for a fill at price with the given
// clip size, or zero when the clip is at or below the threshold.
func (s SlippageModel) Amount(price float64, contracts int) float64 {
	if contracts <= s.ContractThreshold {
		return 0
	}
	return price * s.Pct
}

// Config holds the per-strategy parameters for a PaperTrader.
type Config struct {
	Strategy       string
	Path           string // SQLite file path
	InitialBalance float64
	Commission     CommissionSchedule
	Slippage       SlippageModel
	// QuoteFailureAlert is the consecutive-failure count per contract after
	// which the skip-and-stay-open behavior is escalated to an error log.
	QuoteFailureAlert int
}

// PaperTrader simulates options order execution against a persistent
// per-strategy ledger. All methods are safe for concurrent use.
type PaperTrader struct {
	mu            sync.Mutex
	cfg           Config
	db            *sql.DB
	quotes        QuoteSource
	logger        *logrus.Entry
	balance       float64
	open          map[string]*models.Position
	closed        map[string]*models.Position
	quoteFailures map[string]int
	nowFn         func() time.Time
}

// NewPaperTrader opens (or creates) the strategy's ledger database, restores
// the account balance from the history log, and reloads open positions.
func NewPaperTrader(cfg Config, quotes QuoteSource, logger *logrus.Logger) (*PaperTrader, error) {
	if cfg.Strategy == "" {
		return nil, fmt.Errorf("ledger config requires a strategy id")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("ledger config requires a positive initial balance")
	}
	if cfg.QuoteFailureAlert <= 0 {
		cfg.QuoteFailureAlert = 5
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("opening ledger db %s: %w", cfg.Path, err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	t := &PaperTrader{
		cfg:           cfg,
		db:            db,
		quotes:        quotes,
		logger:        logger.WithField("strategy", cfg.Strategy),
		balance:       cfg.InitialBalance,
		open:          make(map[string]*models.Position),
		closed:        make(map[string]*models.Position),
		quoteFailures: make(map[string]int),
		nowFn:         time.Now,
	}

	if err := t.restore(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restoring ledger state: %w", err)
	}

	return t, nil
}

// Close releases the underlying database handle.
func (t *PaperTrader) Close() error {
	return t.db.Close()
}

// Strategy returns the strategy id this trader's ledger belongs to.
func (t *PaperTrader) Strategy() string {
	return t.cfg.Strategy
}

// Balance returns the current account balance.
func (t *PaperTrader) Balance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// OpenPositions returns a snapshot of currently open positions, ordered by
// prediction id for deterministic iteration.
func (t *PaperTrader) OpenPositions() []models.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Position, 0, len(t.open))
	for _, id := range t.sortedOpenIDs() {
		out = append(out, *t.open[id])
	}
	return out
}

// restore rebuilds the in-memory balance and open-position set from the
// persisted ledger so a restart resumes exactly where the process stopped.
func (t *PaperTrader) restore() error {
	var balance float64
	err := t.db.QueryRow(
		`SELECT balance_after FROM account_history ORDER BY history_id DESC LIMIT 1`,
	).Scan(&balance)
	switch {
	case err == sql.ErrNoRows:
		// Fresh ledger, keep the configured initial balance.
	case err != nil:
		return fmt.Errorf("loading balance: %w", err)
	default:
		t.balance = balance
	}

	rows, err := t.db.Query(`SELECT prediction_id, timestamp, symbol, contract_symbol,
		option_type, strike, expiry, days_to_expiry, entry_price, contracts, total_cost,
		commission, direction, confidence, profit_target_pct, stop_loss_pct,
		profit_target_price, stop_loss_price, max_loss_dollars, stock_price_entry,
		volume, open_interest, signals_data, reasoning
		FROM options_predictions WHERE status = ?`, string(models.StatusOpen))
	if err != nil {
		return fmt.Errorf("loading open predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p models.Prediction
		var entryTotal, entryCommission float64
		var signals, reasoning sql.NullString
		if err := rows.Scan(&p.ID, &p.Timestamp, &p.Symbol, &p.ContractSymbol,
			&p.OptionType, &p.Strike, &p.Expiry, &p.DaysToExpiry, &p.EntryPrice,
			&p.Contracts, &entryTotal, &entryCommission, &p.Direction, &p.Confidence,
			&p.ProfitTargetPct, &p.StopLossPct, &p.ProfitTargetPrice, &p.StopLossPrice,
			&p.MaxLossDollars, &p.StockPriceEntry, &p.Volume, &p.OpenInterest,
			&signals, &reasoning); err != nil {
			return fmt.Errorf("scanning open prediction: %w", err)
		}
		p.SignalsData = signals.String
		p.Reasoning = reasoning.String
		p.TotalCost = entryTotal

		t.open[p.ID] = &models.Position{
			Prediction: p,
			Entry: models.Execution{
				Action:     models.ActionOpen,
				Price:      p.EntryPrice,
				Commission: entryCommission,
				Total:      entryTotal,
				Timestamp:  p.Timestamp,
			},
			EntryTime: p.Timestamp,
			Status:    models.StatusOpen,
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating open predictions: %w", err)
	}

	if len(t.open) > 0 {
		t.logger.WithField("positions", len(t.open)).Info("restored open positions from ledger")
	}
	return nil
}

// OpenPosition simulates a buy-to-open fill for the prediction and records it.
// On any failure (insufficient funds, missing quote, db error) the balance,
// ledger, and in-memory position sets are untouched.
func (t *PaperTrader) OpenPosition(ctx context.Context, pred models.Prediction) error {
	if err := pred.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.open[pred.ID]; exists {
		return fmt.Errorf("prediction %s is already open", pred.ID)
	}
	if pred.TotalCost > t.balance {
		return fmt.Errorf("%w: anticipated cost $%.2f exceeds balance $%.2f",
			ErrInsufficientFunds, pred.TotalCost, t.balance)
	}

	quote, err := t.fetchQuote(ctx, pred.ContractSymbol)
	if err != nil {
		return err
	}

	now := t.nowFn()
	exec := t.simulateExecution(quote, pred.Contracts, models.ActionOpen, now)
	if exec.Total > t.balance {
		return fmt.Errorf("%w: simulated cost $%.2f exceeds balance $%.2f",
			ErrInsufficientFunds, exec.Total, t.balance)
	}

	balanceBefore := t.balance
	balanceAfter := balanceBefore - exec.Total

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning open transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO options_predictions (
		prediction_id, timestamp, symbol, action, contract_symbol, option_type,
		strike, expiry, days_to_expiry, entry_price, contracts, total_cost,
		commission, direction, confidence, expected_move, expected_profit_pct,
		delta, gamma, theta, vega, implied_volatility,
		profit_target_pct, stop_loss_pct, profit_target_price, stop_loss_price,
		max_loss_dollars, stock_price_entry, volume, open_interest,
		signals_data, reasoning, status, account_balance_at_entry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pred.ID, now, pred.Symbol, string(models.ActionOpen), pred.ContractSymbol,
		string(pred.OptionType), pred.Strike, pred.Expiry, pred.DaysToExpiry,
		exec.Price, pred.Contracts, exec.Total, exec.Commission,
		string(pred.Direction), pred.Confidence, pred.ExpectedMove, pred.ExpectedProfitPct,
		pred.Greeks.Delta, pred.Greeks.Gamma, pred.Greeks.Theta, pred.Greeks.Vega,
		pred.Greeks.MidIV, pred.ProfitTargetPct, pred.StopLossPct,
		pred.ProfitTargetPrice, pred.StopLossPrice, pred.MaxLossDollars,
		pred.StockPriceEntry, pred.Volume, pred.OpenInterest,
		pred.SignalsData, pred.Reasoning, string(models.StatusOpen), balanceBefore,
	); err != nil {
		return fmt.Errorf("inserting prediction %s: %w", pred.ID, err)
	}

	description := fmt.Sprintf("opened %d x %s @ $%.2f (commission $%.2f)",
		pred.Contracts, pred.ContractSymbol, exec.Price, exec.Commission)
	if err := insertHistory(ctx, tx, now, "OPEN_POSITION", pred.ID,
		-exec.Total, balanceBefore, balanceAfter, description); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing open for %s: %w", pred.ID, err)
	}

	// Persisted fill becomes the canonical entry price.
	pred.EntryPrice = exec.Price
	pred.TotalCost = exec.Total
	pred.Timestamp = now

	t.balance = balanceAfter
	t.open[pred.ID] = &models.Position{
		Prediction: pred,
		Entry:      exec,
		EntryTime:  now,
		Status:     models.StatusOpen,
	}

	t.logger.WithFields(logrus.Fields{
		"prediction": pred.ID,
		"contract":   pred.ContractSymbol,
		"contracts":  pred.Contracts,
		"fill":       exec.Price,
		"cost":       exec.Total,
		"balance":    t.balance,
	}).Info("opened position")

	return nil
}

// ClosePosition simulates a sell-to-close fill for an open position, records
// the outcome, and moves the position to the closed set.
func (t *PaperTrader) ClosePosition(ctx context.Context, predictionID string, reason models.ExitReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(ctx, predictionID, reason)
}

func (t *PaperTrader) closeLocked(ctx context.Context, predictionID string, reason models.ExitReason) error {
	pos, ok := t.open[predictionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, predictionID)
	}

	quote, err := t.fetchQuote(ctx, pos.Prediction.ContractSymbol)
	if err != nil {
		return err
	}

	now := t.nowFn()
	exec := t.simulateExecution(quote, pos.Prediction.Contracts, models.ActionClose, now)

	costBasis := pos.CostBasis()
	grossPnL := exec.Total - costBasis
	netPnL := grossPnL - exec.Commission
	pnlPct := 0.0
	if costBasis > 0 {
		pnlPct = netPnL / costBasis
	}
	accuracy := 0.0
	if netPnL > 0 {
		accuracy = 1.0
	}

	credit := exec.Total - exec.Commission
	balanceBefore := t.balance
	balanceAfter := balanceBefore + credit

	outcome := models.Outcome{
		PredictionID:       predictionID,
		ExitTimestamp:      now,
		ExitPrice:          exec.Price,
		ExitReason:         reason,
		DaysHeld:           pos.DaysHeld(now),
		EntryCost:          pos.Entry.Total,
		ExitProceeds:       exec.Total,
		GrossPnL:           grossPnL,
		CommissionsTotal:   pos.Entry.Commission + exec.Commission,
		NetPnL:             netPnL,
		PnLPercentage:      pnlPct,
		PredictionAccuracy: accuracy,
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning close transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO options_outcomes (
		prediction_id, exit_timestamp, exit_price, exit_reason, days_held,
		entry_cost, exit_proceeds, gross_pnl, commissions_total, net_pnl,
		pnl_percentage, stock_price_exit, prediction_accuracy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.PredictionID, outcome.ExitTimestamp, outcome.ExitPrice,
		string(outcome.ExitReason), outcome.DaysHeld, outcome.EntryCost,
		outcome.ExitProceeds, outcome.GrossPnL, outcome.CommissionsTotal,
		outcome.NetPnL, outcome.PnLPercentage, outcome.StockPriceExit,
		outcome.PredictionAccuracy,
	); err != nil {
		return fmt.Errorf("inserting outcome for %s: %w", predictionID, err)
	}

	description := fmt.Sprintf("closed %d x %s @ $%.2f (%s, net $%.2f)",
		pos.Prediction.Contracts, pos.Prediction.ContractSymbol, exec.Price, reason, netPnL)
	if err := insertHistory(ctx, tx, now, "CLOSE_POSITION", predictionID,
		credit, balanceBefore, balanceAfter, description); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE options_predictions SET status = ? WHERE prediction_id = ?`,
		string(models.StatusClosed), predictionID); err != nil {
		return fmt.Errorf("updating status for %s: %w", predictionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing close for %s: %w", predictionID, err)
	}

	t.balance = balanceAfter
	pos.Status = models.StatusClosed
	delete(t.open, predictionID)
	t.closed[predictionID] = pos

	t.logger.WithFields(logrus.Fields{
		"prediction": predictionID,
		"reason":     reason,
		"fill":       exec.Price,
		"net_pnl":    netPnL,
		"pnl_pct":    pnlPct * 100,
		"balance":    t.balance,
	}).Info("closed position")

	return nil
}

// CheckPositions evaluates exit conditions for every open position and closes
// those whose condition fires. A quote failure skips that position for the
// cycle; a single position's failure never aborts the scan. Returns
// human-readable descriptions of the actions taken.
func (t *PaperTrader) CheckPositions(ctx context.Context) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var actions []string
	for _, id := range t.sortedOpenIDs() {
		pos, ok := t.open[id]
		if !ok {
			continue // closed earlier in this scan
		}

		quote, err := t.fetchQuote(ctx, pos.Prediction.ContractSymbol)
		if err != nil {
			continue
		}

		reason := evaluateExit(pos, quote.Mid, t.nowFn())
		if reason == "" {
			continue
		}

		if err := t.closeLocked(ctx, id, reason); err != nil {
			t.logger.WithError(err).WithField("prediction", id).Warn("exit fired but close failed")
			continue
		}
		actions = append(actions, fmt.Sprintf("%s: closed %s (%d x %s)",
			reason, id, pos.Prediction.Contracts, pos.Prediction.ContractSymbol))
	}
	return actions
}

// VerifyBalance re-derives the balance from the persisted history and
// compares it with the running in-memory value. It returns an error on drift.
func (t *PaperTrader) VerifyBalance(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var flows sql.NullFloat64
	if err := t.db.QueryRowContext(ctx,
		`SELECT SUM(amount) FROM account_history`).Scan(&flows); err != nil {
		return fmt.Errorf("summing account history: %w", err)
	}

	expected := t.cfg.InitialBalance + flows.Float64
	if diff := expected - t.balance; diff > 1e-6 || diff < -1e-6 {
		return fmt.Errorf("balance drift: ledger implies $%.4f, in-memory $%.4f", expected, t.balance)
	}
	return nil
}

func (t *PaperTrader) simulateExecution(quote *models.Quote, contracts int,
	action models.TradeAction, now time.Time) models.Execution {
	var price, slippage float64
	switch action {
	case models.ActionClose:
		// Seller hits the bid; large clips give up an extra 2%.
		price = quote.Bid
		slippage = t.cfg.Slippage.Amount(price, contracts)
		price -= slippage
	default:
		// Buyer pays the offer; large clips pay up an extra 2%.
		price = quote.Ask
		slippage = t.cfg.Slippage.Amount(price, contracts)
		price += slippage
	}

	commission := t.cfg.Commission.Commission(contracts)
	total := price * models.SharesPerContract * float64(contracts)
	if action == models.ActionOpen {
		total += commission
	}

	return models.Execution{
		Action:     action,
		Price:      price,
		Slippage:   slippage,
		Commission: commission,
		Total:      total,
		Timestamp:  now,
	}
}

// fetchQuote wraps the data source call with failure accounting: a contract
// that repeatedly fails to quote stays open but gets escalated in the logs.
func (t *PaperTrader) fetchQuote(ctx context.Context, contractSymbol string) (*models.Quote, error) {
	quote, err := t.quotes.GetOptionQuote(ctx, contractSymbol)
	if err != nil || quote == nil || quote.Bid < 0 || quote.Ask <= 0 {
		t.quoteFailures[contractSymbol]++
		n := t.quoteFailures[contractSymbol]
		entry := t.logger.WithField("contract", contractSymbol).WithField("consecutive_failures", n)
		if n >= t.cfg.QuoteFailureAlert {
			entry.Error("quote unavailable, position not evaluated; data source may be down")
		} else {
			entry.Warn("quote unavailable, skipping this cycle")
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoQuote, contractSymbol, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, contractSymbol)
	}
	t.quoteFailures[contractSymbol] = 0
	if quote.Mid == 0 {
		quote.Mid = (quote.Bid + quote.Ask) / 2
	}
	return quote, nil
}

func (t *PaperTrader) sortedOpenIDs() []string {
	ids := make([]string, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func insertHistory(ctx context.Context, tx *sql.Tx, now time.Time,
	action, tradeID string, amount, before, after float64, description string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO account_history (
		timestamp, action, trade_id, amount, balance_before, balance_after, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now, action, tradeID, amount, before, after, description); err != nil {
		return fmt.Errorf("appending account history for %s: %w", tradeID, err)
	}
	return nil
}
