package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Annualization parameterizes the return-series statistics: how many equity
// periods make a year, the annual risk-free rate for excess returns, and the
// per-period target return for downside measures.
type Annualization struct {
	PeriodsPerYear float64
	RiskFreeRate   float64
	TargetReturn   float64
}

// DefaultAnnualization assumes daily bars.
func DefaultAnnualization() Annualization {
	return Annualization{PeriodsPerYear: 252}
}

// RejectedSignal records a signal that cleared strategy evaluation but was
// turned down by risk checks, with a human-readable reason. Keeping these in
// the report separates "no opportunity found" from "opportunity rejected".
type RejectedSignal struct {
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// PerformanceReport holds the risk/return statistics computed from a run's
// trade ledger and equity curve. Ratio fields are NaN when undefined (for
// example with zero closed trades) and marshal to JSON null, never zero.
type PerformanceReport struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	Sharpe           float64
	Sortino          float64
	Calmar           float64
	Omega            float64
	MaxDrawdown      float64
	WinRate          float64
	ProfitFactor     float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	AvgWin           float64
	AvgLoss          float64
	TotalFees        float64
	InsufficientSample bool
}

type performanceReportJSON struct {
	TotalReturn      *float64 `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	Volatility       *float64 `json:"volatility"`
	Sharpe           *float64 `json:"sharpe_ratio"`
	Sortino          *float64 `json:"sortino_ratio"`
	Calmar           *float64 `json:"calmar_ratio"`
	Omega            *float64 `json:"omega_ratio"`
	MaxDrawdown      *float64 `json:"max_drawdown"`
	WinRate          *float64 `json:"win_rate"`
	ProfitFactor     *float64 `json:"profit_factor"`
	TotalTrades      int      `json:"total_trades"`
	WinningTrades    int      `json:"winning_trades"`
	LosingTrades     int      `json:"losing_trades"`
	AvgWin           *float64 `json:"avg_win"`
	AvgLoss          *float64 `json:"avg_loss"`
	TotalFees        *float64 `json:"total_fees"`
	InsufficientSample bool   `json:"insufficient_sample"`
}

func finiteOrNull(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON emits undefined (NaN or infinite) statistics as null so the
// report stays serializable for any consumer.
func (r PerformanceReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(performanceReportJSON{
		TotalReturn:      finiteOrNull(r.TotalReturn),
		AnnualizedReturn: finiteOrNull(r.AnnualizedReturn),
		Volatility:       finiteOrNull(r.Volatility),
		Sharpe:           finiteOrNull(r.Sharpe),
		Sortino:          finiteOrNull(r.Sortino),
		Calmar:           finiteOrNull(r.Calmar),
		Omega:            finiteOrNull(r.Omega),
		MaxDrawdown:      finiteOrNull(r.MaxDrawdown),
		WinRate:          finiteOrNull(r.WinRate),
		ProfitFactor:     finiteOrNull(r.ProfitFactor),
		TotalTrades:      r.TotalTrades,
		WinningTrades:    r.WinningTrades,
		LosingTrades:     r.LosingTrades,
		AvgWin:           finiteOrNull(r.AvgWin),
		AvgLoss:          finiteOrNull(r.AvgLoss),
		TotalFees:        finiteOrNull(r.TotalFees),
		InsufficientSample: r.InsufficientSample,
	})
}

// UnmarshalJSON restores null statistics back to NaN.
func (r *PerformanceReport) UnmarshalJSON(data []byte) error {
	var in performanceReportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	deref := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	r.TotalReturn = deref(in.TotalReturn)
	r.AnnualizedReturn = deref(in.AnnualizedReturn)
	r.Volatility = deref(in.Volatility)
	r.Sharpe = deref(in.Sharpe)
	r.Sortino = deref(in.Sortino)
	r.Calmar = deref(in.Calmar)
	r.Omega = deref(in.Omega)
	r.MaxDrawdown = deref(in.MaxDrawdown)
	r.WinRate = deref(in.WinRate)
	r.ProfitFactor = deref(in.ProfitFactor)
	r.TotalTrades = in.TotalTrades
	r.WinningTrades = in.WinningTrades
	r.LosingTrades = in.LosingTrades
	r.AvgWin = deref(in.AvgWin)
	r.AvgLoss = deref(in.AvgLoss)
	r.TotalFees = deref(in.TotalFees)
	r.InsufficientSample = in.InsufficientSample
	return nil
}

// RunReport is the complete JSON-serializable output of one run. It is the
// only surface the presentation layer consumes.
type RunReport struct {
	RunID           string            `json:"run_id"`
	Strategy        string            `json:"strategy"`
	Profile         string            `json:"profile"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	InitialCash     float64           `json:"initial_cash"`
	FinalValue      float64           `json:"final_value"`
	Trades          []Trade           `json:"trades"`
	EquityCurve     []EquityPoint     `json:"equity_curve"`
	Performance     PerformanceReport `json:"performance"`
	RejectedSignals []RejectedSignal  `json:"rejected_signals"`
}
