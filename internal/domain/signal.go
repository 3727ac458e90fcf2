package domain

import "time"

type Direction string

const (
	EnterLong Direction = "enter_long"
	ExitLong  Direction = "exit_long"
)

// Signal is a strategy's recommendation for one symbol in one cycle. It is
// produced fresh each cycle and never persisted beyond the cycle that used it.
type Signal struct {
	Symbol      string
	Direction   Direction
	Strategy    string
	Profile     string
	Confidence  float64 // 0..1
	Reason      string
	GeneratedAt time.Time
}

// Profile is a named parameter set applied to a strategy without changing
// its logic. Weight keys must belong to the strategy's condition set.
type Profile struct {
	Name           string
	EntryWeights   map[string]float64
	EntryThreshold float64
	RSIRange       [2]float64 // oversold, overbought bounds
	StopLossPct    float64
	TakeProfitPct  float64
	MaxHoldDays    int
}
