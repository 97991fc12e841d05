package ledger

import "errors"

// ErrInsufficientFunds is returned when a prediction's anticipated or
// simulated cost exceeds the current account balance. No state changes.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrPositionNotFound is returned when closing a prediction id that is not
// currently open.
var ErrPositionNotFound = errors.New("position not found")

// ErrNoQuote is returned when the data source cannot supply a current
// bid/ask for the contract. Open and close abort without state changes;
// exit evaluation skips the position for the cycle.
var ErrNoQuote = errors.New("no quote available")
