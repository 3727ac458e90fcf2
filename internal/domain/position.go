package domain

import "time"

// ExitReason names what closed a position.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitMaxHold    ExitReason = "max_hold"
)

// Position is an open, owned quantity of a symbol. Exactly one open position
// may exist per symbol. A closed position is terminal; any re-entry on the
// same symbol creates a new Position.
type Position struct {
	Symbol        string
	Shares        int // whole shares, always > 0
	AvgEntryPrice float64
	OpenedAt      time.Time
	StopLoss      float64
	TakeProfit    float64
	TrailingPct   float64 // > 0 ratchets StopLoss up from HighWaterMark
	HighWaterMark float64
	MaxHoldUntil  time.Time // zero means no hold limit
	Strategy      string
	Profile       string
	EntryFees     float64
	LastPrice     float64
	UnrealizedPnL float64
}

// MarketValue is the position's worth at its last mark.
func (p *Position) MarketValue() float64 {
	return float64(p.Shares) * p.LastPrice
}

// Trade is the immutable record of a closed position, appended to the ledger
// the performance analyzer consumes.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Shares     int        `json:"shares"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	EnteredAt  time.Time  `json:"entered_at"`
	ExitedAt   time.Time  `json:"exited_at"`
	PnL        float64    `json:"pnl_dollars"`
	PnLPct     float64    `json:"pnl_pct"`
	Fees       float64    `json:"fees"`
	ExitReason ExitReason `json:"exit_reason"`
	Strategy   string     `json:"strategy"`
	Profile    string     `json:"profile"`
}
