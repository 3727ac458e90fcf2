package usecase

import (
	"fmt"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// RSIStrategy buys recoveries out of the oversold band and exits when RSI
// runs into the overbought bound. Both bounds come from the profile's
// RSIRange.
type RSIStrategy struct{}

func (s *RSIStrategy) Name() string { return "rsi" }

// MinBars covers the 14-period RSI plus the previous reading.
func (s *RSIStrategy) MinBars() int { return 15 }

func (s *RSIStrategy) Conditions() []string {
	return []string{CondCrossover, CondTrendFilter, CondVolumeFilter}
}

func (s *RSIStrategy) Evaluate(symbol string, window []domain.Bar, p domain.Profile) (*domain.Signal, error) {
	if len(window) < s.MinBars() {
		return nil, insufficientData(s, len(window))
	}
	prev, curr := lastTwo(window)

	prevRSI, ok1 := prev.Indicator(domain.IndRSI)
	currRSI, ok2 := curr.Indicator(domain.IndRSI)
	if !ok1 || !ok2 {
		return nil, nil
	}
	oversold, overbought := p.RSIRange[0], p.RSIRange[1]

	if crossesUp(prevRSI, currRSI, overbought) {
		reason := fmt.Sprintf("rsi %.1f crossed into overbought (%.1f)", currRSI, overbought)
		return exitSignal(symbol, s, p, reason, curr.Time), nil
	}

	passed := map[string]bool{
		CondCrossover: crossesUp(prevRSI, currRSI, oversold),
	}
	if ema, ok := curr.Indicator(domain.IndEMA20); ok {
		passed[CondTrendFilter] = curr.Close > ema
	}
	passed[CondVolumeFilter] = curr.Volume > prev.Volume

	if !passed[CondCrossover] {
		return nil, nil
	}
	score := scoreConditions(passed, p.EntryWeights)
	if score < p.EntryThreshold {
		return nil, nil
	}
	reason := fmt.Sprintf("rsi %.1f recovered through oversold (%.1f), score %.2f >= %.2f",
		currRSI, oversold, score, p.EntryThreshold)
	return entrySignal(symbol, s, p, score, reason, curr.Time), nil
}
