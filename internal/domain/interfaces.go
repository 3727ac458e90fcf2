package domain

import (
	"context"
	"time"
)

// BarSource provides historical bars to the engine. The data-acquisition
// layer behind it is an external collaborator; failures and timeouts are
// reported as errors and the engine skips the symbol for that cycle.
type BarSource interface {
	// BarsRange returns the bars for symbol with from <= Time <= to, in
	// chronological order.
	BarsRange(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
	// RecentBars returns up to limit bars with Time <= before, in
	// chronological order. Used by automation ticks to build the lookback
	// window ending "now".
	RecentBars(ctx context.Context, symbol string, before time.Time, limit int) ([]Bar, error)
}

// BarRepository extends BarSource with ingest, used by the importer.
type BarRepository interface {
	BarSource
	SaveBars(ctx context.Context, bars []Bar) error
}

// TradeRepository defines storage operations for the closed-trade ledger and
// the equity curve of a run.
type TradeRepository interface {
	SaveTrade(ctx context.Context, runID string, t *Trade) error
	TradesByRun(ctx context.Context, runID string) ([]Trade, error)

	SaveEquityPoint(ctx context.Context, runID string, p EquityPoint) error
	EquityCurve(ctx context.Context, runID string) ([]EquityPoint, error)
}

// PortfolioRepository persists portfolio snapshots between automation ticks
// so a crashed tick never corrupts the next one. LoadPortfolio returns
// ErrNotFound for an unknown run.
type PortfolioRepository interface {
	SavePortfolio(ctx context.Context, runID string, p *Portfolio) error
	LoadPortfolio(ctx context.Context, runID string) (*Portfolio, error)
}
