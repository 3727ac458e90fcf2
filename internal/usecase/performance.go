package usecase

import (
	"math"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// ComputePerformance derives the risk/return statistics from a run's closed
// trades and equity curve. Undefined statistics stay NaN (they marshal to
// JSON null); degenerate input never panics. With zero closed trades every
// ratio is undefined and InsufficientSample is set.
func ComputePerformance(trades []domain.Trade, equity []domain.EquityPoint, ann domain.Annualization) domain.PerformanceReport {
	if ann.PeriodsPerYear <= 0 {
		ann.PeriodsPerYear = 252
	}
	nan := math.NaN()
	report := domain.PerformanceReport{
		TotalReturn:      nan,
		AnnualizedReturn: nan,
		Volatility:       nan,
		Sharpe:           nan,
		Sortino:          nan,
		Calmar:           nan,
		Omega:            nan,
		MaxDrawdown:      nan,
		WinRate:          nan,
		ProfitFactor:     nan,
		AvgWin:           nan,
		AvgLoss:          nan,
	}

	// Trade ledger statistics.
	report.TotalTrades = len(trades)
	var gains, losses float64
	for _, t := range trades {
		report.TotalFees += t.Fees
		switch {
		case t.PnL > 0:
			report.WinningTrades++
			gains += t.PnL
		case t.PnL < 0:
			report.LosingTrades++
			losses += -t.PnL
		}
	}
	if report.TotalTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades)
	}
	if report.WinningTrades > 0 {
		report.AvgWin = gains / float64(report.WinningTrades)
	}
	if report.LosingTrades > 0 {
		report.AvgLoss = -losses / float64(report.LosingTrades)
	}
	if losses > 0 {
		// With gains and no losses the factor is unbounded and stays NaN.
		report.ProfitFactor = gains / losses
	}

	// Equity-curve statistics.
	if len(equity) >= 2 && equity[0].Value > 0 {
		first := equity[0].Value
		last := equity[len(equity)-1].Value
		report.TotalReturn = last/first - 1

		periods := float64(len(equity) - 1)
		if last > 0 {
			report.AnnualizedReturn = math.Pow(last/first, ann.PeriodsPerYear/periods) - 1
		}

		returns := equityReturns(equity)
		if len(returns) > 0 {
			avg := mean(returns)
			sd := stdDev(returns, avg)
			sqrtYear := math.Sqrt(ann.PeriodsPerYear)
			report.Volatility = sd * sqrtYear

			rfPeriod := ann.RiskFreeRate / ann.PeriodsPerYear
			if sd > 0 {
				report.Sharpe = (avg - rfPeriod) / sd * sqrtYear
			}
			if dd := downsideDeviation(returns, ann.TargetReturn); dd > 0 {
				report.Sortino = (avg - ann.TargetReturn) / dd * sqrtYear
			}
			report.Omega = omegaRatio(returns, ann.TargetReturn)
		}

		report.MaxDrawdown = maxDrawdown(equity)
		if report.MaxDrawdown > 0 && !math.IsNaN(report.AnnualizedReturn) {
			report.Calmar = report.AnnualizedReturn / report.MaxDrawdown
		}
	}

	if report.TotalTrades == 0 {
		report.InsufficientSample = true
		report.Sharpe = nan
		report.Sortino = nan
		report.Calmar = nan
		report.Omega = nan
		report.WinRate = nan
		report.ProfitFactor = nan
	}
	return report
}

// equityReturns builds the simple per-period return series, skipping
// non-positive denominators.
func equityReturns(equity []domain.EquityPoint) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, equity[i].Value/prev-1)
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64, avg float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// downsideDeviation measures only the returns below target.
func downsideDeviation(xs []float64, target float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		if x < target {
			d := x - target
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// omegaRatio is the probability-weighted gains above target over the losses
// below it. NaN when there are no losses to weigh against.
func omegaRatio(xs []float64, target float64) float64 {
	var above, below float64
	for _, x := range xs {
		if x > target {
			above += x - target
		} else {
			below += target - x
		}
	}
	if below <= 0 {
		return math.NaN()
	}
	return above / below
}

// maxDrawdown is the largest peak-to-trough decline as a positive fraction,
// tracked with a running peak in a single pass over the curve.
func maxDrawdown(equity []domain.EquityPoint) float64 {
	if len(equity) == 0 {
		return math.NaN()
	}
	peak := equity[0].Value
	var maxDD float64
	for _, pt := range equity[1:] {
		if pt.Value > peak {
			peak = pt.Value
			continue
		}
		if peak > 0 {
			if dd := (peak - pt.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
