package domain

import (
	"math"
	"time"
)

// Bar is one OHLCV record for a symbol plus the precomputed indicator
// columns delivered by the data collaborator. Bars are immutable once
// produced; the engine only reads them.
type Bar struct {
	Symbol     string             `json:"symbol"`
	Time       time.Time          `json:"time"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Common indicator column names. The set of columns is a contract between
// the data collaborator and the strategies; a missing column yields
// "no signal", never a crash.
const (
	IndMACDLine   = "macd_line_12_26"
	IndMACDSignal = "macd_signal_12_26"
	IndRSI        = "rsi_14"
	IndEMA20      = "ema_20"
	IndEMA50      = "ema_50"
	IndATR        = "atr_14"
	IndBBUpper    = "bb_upper_20_2.0"
	IndBBMiddle   = "bb_middle_20_2.0"
	IndBBLower    = "bb_lower_20_2.0"
)

// Indicator returns the named indicator value. ok is false when the column
// is absent or holds NaN, which callers must treat as "no signal".
func (b Bar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
