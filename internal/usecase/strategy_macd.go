package usecase

import (
	"fmt"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// MACDStrategy trades MACD/signal-line crossovers. The crossover is the
// tie-break condition and must be strictly true; RSI neutrality and price
// above EMA-20 are weighted filters.
type MACDStrategy struct{}

func (s *MACDStrategy) Name() string { return "macd" }

// MinBars covers the 26-period slow EMA behind the MACD columns.
func (s *MACDStrategy) MinBars() int { return 26 }

func (s *MACDStrategy) Conditions() []string {
	return []string{CondCrossover, CondRSIFilter, CondTrendFilter}
}

func (s *MACDStrategy) Evaluate(symbol string, window []domain.Bar, p domain.Profile) (*domain.Signal, error) {
	if len(window) < s.MinBars() {
		return nil, insufficientData(s, len(window))
	}
	prev, curr := lastTwo(window)

	prevLine, ok1 := prev.Indicator(domain.IndMACDLine)
	prevSig, ok2 := prev.Indicator(domain.IndMACDSignal)
	currLine, ok3 := curr.Indicator(domain.IndMACDLine)
	currSig, ok4 := curr.Indicator(domain.IndMACDSignal)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil // indicator contract not met for this bar
	}

	// The spread flips sign exactly when the MACD line crosses its signal line.
	prevSpread := prevLine - prevSig
	currSpread := currLine - currSig

	if crossesDown(prevSpread, currSpread, 0) {
		return exitSignal(symbol, s, p, "macd line crossed below signal line", curr.Time), nil
	}

	passed := map[string]bool{
		CondCrossover: crossesUp(prevSpread, currSpread, 0),
	}
	if rsi, ok := curr.Indicator(domain.IndRSI); ok {
		passed[CondRSIFilter] = rsi >= p.RSIRange[0] && rsi <= p.RSIRange[1]
	}
	if ema, ok := curr.Indicator(domain.IndEMA20); ok {
		passed[CondTrendFilter] = curr.Close > ema
	}

	if !passed[CondCrossover] {
		return nil, nil
	}
	score := scoreConditions(passed, p.EntryWeights)
	if score < p.EntryThreshold {
		return nil, nil
	}
	reason := fmt.Sprintf("macd crossed above signal line, score %.2f >= %.2f", score, p.EntryThreshold)
	return entrySignal(symbol, s, p, score, reason, curr.Time), nil
}
