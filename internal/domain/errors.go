package domain

import "errors"

// Sentinel errors for the engine's failure taxonomy. Data and risk errors
// are recovered locally each cycle; contract errors abort only the current
// symbol's cycle.
var (
	// ErrInsufficientData is returned by a strategy whose window is shorter
	// than its minimum lookback. The engine treats it as "no signal".
	ErrInsufficientData = errors.New("insufficient data for lookback window")

	// ErrInsufficientCash rejects an entry whose intelligently sized share
	// count would be zero or less.
	ErrInsufficientCash = errors.New("insufficient cash for trade")

	// ErrMaxPositionsReached rejects a new-symbol entry at the concurrent
	// position cap.
	ErrMaxPositionsReached = errors.New("max concurrent positions reached")

	// ErrSymbolAlreadyOpen rejects an entry for a symbol that already has an
	// open position. Pyramiding is not supported.
	ErrSymbolAlreadyOpen = errors.New("symbol already has an open position")

	// ErrNoPosition is returned when closing or marking a symbol without an
	// open position.
	ErrNoPosition = errors.New("no open position for symbol")

	// ErrNotFound is returned by repositories for absent records.
	ErrNotFound = errors.New("not found")
)
