package models

import (
	"fmt"
	"time"
)

// PositionStatus represents the lifecycle state of a paper position.
type PositionStatus string

const (
	// StatusOpen indicates the position is held and monitored each cycle
	StatusOpen PositionStatus = "OPEN"
	// StatusClosed is the terminal state; closed positions are never reopened
	StatusClosed PositionStatus = "CLOSED"
)

// ExitReason identifies which exit condition closed a position.
type ExitReason string

const (
	// ExitProfitTarget fires when the mid reaches entry * (1 + profit target pct)
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	// ExitStopLoss fires when the mid falls to entry * (1 - stop loss pct)
	ExitStopLoss ExitReason = "STOP_LOSS"
	// ExitTimeDecay fires with one calendar day or less to expiry
	ExitTimeDecay ExitReason = "TIME_DECAY"
	// ExitMaxHoldTime fires once a quarter of the option's original life has elapsed
	ExitMaxHoldTime ExitReason = "MAX_HOLD_TIME"
	// ExitManual marks an externally requested close
	ExitManual ExitReason = "MANUAL"
)

// TradeAction identifies the side of a simulated execution.
type TradeAction string

const (
	// ActionOpen buys to open at the ask
	ActionOpen TradeAction = "OPEN"
	// ActionClose sells to close at the bid
	ActionClose TradeAction = "CLOSE"
)

// Prediction is the immutable trade intent produced by the strategy layer.
// Once persisted it is never modified apart from the position status.
type Prediction struct {
	ID             string    `json:"prediction_id"`
	Timestamp      time.Time `json:"timestamp"`
	Symbol         string    `json:"symbol"` // underlying
	ContractSymbol string    `json:"contract_symbol"`
	OptionType     OptionType `json:"option_type"`
	Strike         float64   `json:"strike"`
	Expiry         time.Time `json:"expiry"`
	DaysToExpiry   int       `json:"days_to_expiry"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence"` // 0..1 fused signal confidence

	// Sizing as anticipated by the strategy layer; actual fill may differ.
	EntryPrice float64 `json:"entry_price"` // anticipated fill (ask at decision time)
	Contracts  int     `json:"contracts"`
	TotalCost  float64 `json:"total_cost"`

	// Risk thresholds carried into exit evaluation.
	ProfitTargetPct   float64 `json:"profit_target_pct"`
	StopLossPct       float64 `json:"stop_loss_pct"`
	ProfitTargetPrice float64 `json:"profit_target_price"`
	StopLossPrice     float64 `json:"stop_loss_price"`
	MaxLossDollars    float64 `json:"max_loss_dollars"`

	// Expectations and market context at entry.
	ExpectedMove      float64 `json:"expected_move"`
	ExpectedProfitPct float64 `json:"expected_profit_pct"`
	Greeks            Greeks  `json:"greeks"`
	StockPriceEntry   float64 `json:"stock_price_entry"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`

	SignalsData string `json:"signals_data"` // JSON blob of per-signal scores
	Reasoning   string `json:"reasoning"`
}

// Validate checks the prediction carries everything the executor needs.
func (p *Prediction) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("prediction has no id")
	}
	if p.ContractSymbol == "" {
		return fmt.Errorf("prediction %s has no contract symbol", p.ID)
	}
	if !p.OptionType.Valid() {
		return fmt.Errorf("prediction %s has invalid option type %q", p.ID, p.OptionType)
	}
	if p.Contracts <= 0 {
		return fmt.Errorf("prediction %s has non-positive contract count %d", p.ID, p.Contracts)
	}
	if p.TotalCost <= 0 {
		return fmt.Errorf("prediction %s has non-positive total cost %.2f", p.ID, p.TotalCost)
	}
	if p.ProfitTargetPct <= 0 || p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("prediction %s has invalid risk thresholds (pt=%.3f sl=%.3f)",
			p.ID, p.ProfitTargetPct, p.StopLossPct)
	}
	return nil
}

// Execution records a simulated fill, including slippage and commission.
type Execution struct {
	Action     TradeAction `json:"action"`
	Price      float64     `json:"price"` // fill price after slippage
	Slippage   float64     `json:"slippage"`
	Commission float64     `json:"commission"`
	Total      float64     `json:"total"` // cost for OPEN, proceeds for CLOSE
	Timestamp  time.Time   `json:"timestamp"`
}

// Position couples an immutable prediction with its realized entry fill.
// A position lives in exactly one of the trader's open or closed sets.
type Position struct {
	Prediction Prediction     `json:"prediction"`
	Entry      Execution      `json:"entry"`
	EntryTime  time.Time      `json:"entry_timestamp"`
	Status     PositionStatus `json:"status"`
}

// DaysHeld returns whole calendar days the position has been open.
func (p *Position) DaysHeld(now time.Time) int {
	d := int(now.Sub(p.EntryTime).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// DTE returns calendar days until the contract expires.
func (p *Position) DTE(now time.Time) int {
	return DaysBetween(now, p.Prediction.Expiry)
}

// MaxHoldDays is the time-based exit budget: a quarter of the option's
// original life, never less than one day.
func (p *Position) MaxHoldDays() int {
	d := p.Prediction.DaysToExpiry / 4
	if d < 1 {
		return 1
	}
	return d
}

// CostBasis returns the entry cost excluding the entry commission.
// This is the basis used for gross/net P&L and the P&L percentage.
func (p *Position) CostBasis() float64 {
	return p.Entry.Total - p.Entry.Commission
}

// Outcome records the result of a closed position.
type Outcome struct {
	PredictionID       string     `json:"prediction_id"`
	ExitTimestamp      time.Time  `json:"exit_timestamp"`
	ExitPrice          float64    `json:"exit_price"`
	ExitReason         ExitReason `json:"exit_reason"`
	DaysHeld           int        `json:"days_held"`
	EntryCost          float64    `json:"entry_cost"`
	ExitProceeds       float64    `json:"exit_proceeds"`
	GrossPnL           float64    `json:"gross_pnl"`
	CommissionsTotal   float64    `json:"commissions_total"`
	NetPnL             float64    `json:"net_pnl"`
	PnLPercentage      float64    `json:"pnl_percentage"`
	StockPriceExit     float64    `json:"stock_price_exit"`
	PredictionAccuracy float64    `json:"prediction_accuracy"` // 1.0 if profitable else 0.0
}
