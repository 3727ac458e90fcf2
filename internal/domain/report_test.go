package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/yishaiam518/papertrader/internal/domain"
)

func TestPerformanceReport_MarshalNulls(t *testing.T) {
	r := domain.PerformanceReport{
		TotalReturn:        0.05,
		AnnualizedReturn:   math.NaN(),
		Volatility:         0.2,
		Sharpe:             math.NaN(),
		Sortino:            math.Inf(1),
		Calmar:             math.NaN(),
		Omega:              math.NaN(),
		MaxDrawdown:        0.1,
		WinRate:            math.NaN(),
		ProfitFactor:       math.Inf(1),
		AvgWin:             75,
		AvgLoss:            math.NaN(),
		TotalTrades:        3,
		WinningTrades:      3,
		InsufficientSample: false,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}

	// NaN and infinity both serialize as null; finite values stay numbers.
	for _, key := range []string{"annualized_return", "sharpe_ratio", "sortino_ratio", "calmar_ratio", "omega_ratio", "win_rate", "profit_factor", "avg_loss"} {
		if m[key] != nil {
			t.Errorf("%s = %v, want null", key, m[key])
		}
	}
	if got, ok := m["total_return"].(float64); !ok || got != 0.05 {
		t.Errorf("total_return = %v, want 0.05", m["total_return"])
	}
	if got, ok := m["total_trades"].(float64); !ok || got != 3 {
		t.Errorf("total_trades = %v, want 3", m["total_trades"])
	}
}

func TestPerformanceReport_RoundTrip(t *testing.T) {
	orig := domain.PerformanceReport{
		TotalReturn:        0.045,
		Sharpe:             math.NaN(),
		ProfitFactor:       math.NaN(),
		TotalTrades:        1,
		WinningTrades:      1,
		AvgWin:             51,
		AvgLoss:            math.NaN(),
		InsufficientSample: false,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back domain.PerformanceReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.TotalReturn != 0.045 {
		t.Errorf("total return = %v, want 0.045", back.TotalReturn)
	}
	if !math.IsNaN(back.Sharpe) || !math.IsNaN(back.ProfitFactor) || !math.IsNaN(back.AvgLoss) {
		t.Errorf("null fields did not restore to NaN: %+v", back)
	}
	if back.TotalTrades != 1 || back.WinningTrades != 1 {
		t.Errorf("counts = %d/%d, want 1/1", back.TotalTrades, back.WinningTrades)
	}
	if back.AvgWin != 51 {
		t.Errorf("avg win = %v, want 51", back.AvgWin)
	}
}
