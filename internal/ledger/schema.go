package ledger

import (
	"database/sql"
	"fmt"
)

// One SQLite file per strategy. The three tables mirror the audit trail the
// bot produces: immutable predictions, one outcome per close, and an
// append-only balance history that must always tie out to the running balance.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS options_predictions (
		prediction_id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		contract_symbol TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		expiry DATETIME NOT NULL,
		days_to_expiry INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		contracts INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		commission REAL NOT NULL,
		direction TEXT NOT NULL,
		confidence REAL NOT NULL,
		expected_move REAL NOT NULL DEFAULT 0,
		expected_profit_pct REAL NOT NULL DEFAULT 0,
		delta REAL NOT NULL DEFAULT 0,
		gamma REAL NOT NULL DEFAULT 0,
		theta REAL NOT NULL DEFAULT 0,
		vega REAL NOT NULL DEFAULT 0,
		implied_volatility REAL NOT NULL DEFAULT 0,
		profit_target_pct REAL NOT NULL,
		stop_loss_pct REAL NOT NULL,
		profit_target_price REAL NOT NULL DEFAULT 0,
		stop_loss_price REAL NOT NULL DEFAULT 0,
		max_loss_dollars REAL NOT NULL DEFAULT 0,
		stock_price_entry REAL NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		open_interest INTEGER NOT NULL DEFAULT 0,
		signals_data TEXT,
		reasoning TEXT,
		status TEXT NOT NULL DEFAULT 'OPEN',
		account_balance_at_entry REAL NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_status ON options_predictions(status);`,
	`CREATE TABLE IF NOT EXISTS options_outcomes (
		outcome_id INTEGER PRIMARY KEY AUTOINCREMENT,
		prediction_id TEXT NOT NULL REFERENCES options_predictions(prediction_id),
		exit_timestamp DATETIME NOT NULL,
		exit_price REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		days_held INTEGER NOT NULL,
		entry_cost REAL NOT NULL,
		exit_proceeds REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		commissions_total REAL NOT NULL,
		net_pnl REAL NOT NULL,
		pnl_percentage REAL NOT NULL,
		stock_price_exit REAL NOT NULL DEFAULT 0,
		prediction_accuracy REAL NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_prediction ON options_outcomes(prediction_id);`,
	`CREATE TABLE IF NOT EXISTS account_history (
		history_id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		amount REAL NOT NULL,
		balance_before REAL NOT NULL,
		balance_after REAL NOT NULL,
		description TEXT
	);`,
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing ledger schema: %w", err)
		}
	}
	return nil
}
