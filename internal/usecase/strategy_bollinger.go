package usecase

import (
	"fmt"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// BollingerStrategy is mean reversion: it buys the close crossing back above
// the lower band after an oversold dip and exits when the close reclaims the
// middle band.
type BollingerStrategy struct{}

func (s *BollingerStrategy) Name() string { return "bollinger" }

// MinBars covers the 20-period band window.
func (s *BollingerStrategy) MinBars() int { return 20 }

func (s *BollingerStrategy) Conditions() []string {
	return []string{CondCrossover, CondRSIFilter, CondVolumeFilter}
}

func (s *BollingerStrategy) Evaluate(symbol string, window []domain.Bar, p domain.Profile) (*domain.Signal, error) {
	if len(window) < s.MinBars() {
		return nil, insufficientData(s, len(window))
	}
	prev, curr := lastTwo(window)

	prevLower, ok1 := prev.Indicator(domain.IndBBLower)
	currLower, ok2 := curr.Indicator(domain.IndBBLower)
	prevMiddle, ok3 := prev.Indicator(domain.IndBBMiddle)
	currMiddle, ok4 := curr.Indicator(domain.IndBBMiddle)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil
	}

	// Distances to the moving bands; a sign flip is a cross.
	if crossesUp(prev.Close-prevMiddle, curr.Close-currMiddle, 0) {
		return exitSignal(symbol, s, p, "close reclaimed the middle band", curr.Time), nil
	}

	passed := map[string]bool{
		CondCrossover:    crossesUp(prev.Close-prevLower, curr.Close-currLower, 0),
		CondVolumeFilter: curr.Volume > prev.Volume,
	}
	if prevRSI, ok := prev.Indicator(domain.IndRSI); ok {
		// The dip the entry recovers from must have been genuinely oversold.
		passed[CondRSIFilter] = prevRSI <= p.RSIRange[0]
	}

	if !passed[CondCrossover] {
		return nil, nil
	}
	score := scoreConditions(passed, p.EntryWeights)
	if score < p.EntryThreshold {
		return nil, nil
	}
	reason := fmt.Sprintf("close crossed back above lower band, score %.2f >= %.2f", score, p.EntryThreshold)
	return entrySignal(symbol, s, p, score, reason, curr.Time), nil
}
