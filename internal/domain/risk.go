package domain

import (
	"fmt"
	"time"
)

// StopMode selects how the initial stop-loss level is computed.
type StopMode string

const (
	StopFixed    StopMode = "fixed"    // entry * (1 - stop_loss_pct)
	StopATR      StopMode = "atr"      // entry - atr_multiplier * ATR
	StopTrailing StopMode = "trailing" // fixed, then ratcheted up on favorable marks
)

// RiskLimits is the portfolio-level constraint set for one run. It is loaded
// once, validated, and never mutated; changing limits means a new run.
type RiskLimits struct {
	MaxPositionPct float64  // max position value as a fraction of total value
	TransactionPct float64  // max single-transaction value as a fraction of tradable cash
	MaxPositions   int      // max concurrently open positions
	StopLossPct    float64  // default stop distance, fraction of entry
	TakeProfitPct  float64  // default take-profit distance, fraction of entry
	SafeCashFloor  float64  // dollars kept out of trading
	StopMode       StopMode // "fixed", "atr" or "trailing"
	ATRMultiplier  float64
	ATRColumn      string // indicator column for ATR stops
	MaxHoldDays    int    // 0 means no hold limit
}

// Validate rejects limits that would make sizing meaningless.
func (r RiskLimits) Validate() error {
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_size_pct must be in (0,1], got %v", r.MaxPositionPct)
	}
	if r.TransactionPct <= 0 || r.TransactionPct > 1 {
		return fmt.Errorf("transaction_limit_pct must be in (0,1], got %v", r.TransactionPct)
	}
	if r.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive, got %d", r.MaxPositions)
	}
	if r.StopLossPct < 0 || r.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in [0,1), got %v", r.StopLossPct)
	}
	if r.TakeProfitPct < 0 {
		return fmt.Errorf("take_profit_pct must not be negative, got %v", r.TakeProfitPct)
	}
	if r.SafeCashFloor < 0 {
		return fmt.Errorf("safe_cash_floor must not be negative, got %v", r.SafeCashFloor)
	}
	switch r.StopMode {
	case StopFixed, StopTrailing:
	case StopATR:
		if r.ATRMultiplier <= 0 {
			return fmt.Errorf("atr_multiplier must be positive for atr stops, got %v", r.ATRMultiplier)
		}
	case "":
		return fmt.Errorf("stop_mode is required")
	default:
		return fmt.Errorf("unknown stop_mode %q", r.StopMode)
	}
	if r.MaxHoldDays < 0 {
		return fmt.Errorf("max_hold_days must not be negative, got %d", r.MaxHoldDays)
	}
	return nil
}

// Sizing is the risk manager's answer for an accepted entry: the share count
// actually used, the risk levels fixed at acceptance time, and a
// human-readable reason naming the binding constraint.
type Sizing struct {
	Shares       int
	Value        float64 // shares * price
	StopLoss     float64
	TakeProfit   float64
	TrailingPct  float64
	MaxHoldUntil time.Time
	Reason       string
}
