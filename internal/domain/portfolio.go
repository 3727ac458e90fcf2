package domain

import "time"

// EquityPoint is one recorded mark of total portfolio value.
type EquityPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Portfolio is the authoritative cash/position/equity state of a run. It is
// exclusively owned and mutated by the position manager; everything else
// sees read-only views.
type Portfolio struct {
	Cash      float64
	Positions map[string]*Position
	Equity    []EquityPoint
}

// PositionSnapshot is the read-only projection of one open position.
type PositionSnapshot struct {
	Symbol        string
	Shares        int
	AvgEntryPrice float64
	LastPrice     float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// PortfolioView is the snapshot handed to strategies and the risk manager.
// TotalValue is cash plus every open position at its last mark.
type PortfolioView struct {
	Cash       float64
	TotalValue float64
	Positions  map[string]PositionSnapshot
}

// HasPosition reports whether the snapshot holds an open position in symbol.
func (v PortfolioView) HasPosition(symbol string) bool {
	_, ok := v.Positions[symbol]
	return ok
}
