package usecase

import (
	"fmt"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// CrossoverStrategy trades the EMA-20/EMA-50 golden cross and exits on the
// reverse cross.
type CrossoverStrategy struct{}

func (s *CrossoverStrategy) Name() string { return "crossover" }

// MinBars covers the slow EMA-50 leg.
func (s *CrossoverStrategy) MinBars() int { return 50 }

func (s *CrossoverStrategy) Conditions() []string {
	return []string{CondCrossover, CondPriceFilter, CondVolumeFilter}
}

func (s *CrossoverStrategy) Evaluate(symbol string, window []domain.Bar, p domain.Profile) (*domain.Signal, error) {
	if len(window) < s.MinBars() {
		return nil, insufficientData(s, len(window))
	}
	prev, curr := lastTwo(window)

	prevFast, ok1 := prev.Indicator(domain.IndEMA20)
	prevSlow, ok2 := prev.Indicator(domain.IndEMA50)
	currFast, ok3 := curr.Indicator(domain.IndEMA20)
	currSlow, ok4 := curr.Indicator(domain.IndEMA50)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil
	}

	prevSpread := prevFast - prevSlow
	currSpread := currFast - currSlow

	if crossesDown(prevSpread, currSpread, 0) {
		return exitSignal(symbol, s, p, "ema 20 crossed below ema 50", curr.Time), nil
	}

	passed := map[string]bool{
		CondCrossover:    crossesUp(prevSpread, currSpread, 0),
		CondPriceFilter:  curr.Close > currFast,
		CondVolumeFilter: curr.Volume > prev.Volume,
	}

	if !passed[CondCrossover] {
		return nil, nil
	}
	score := scoreConditions(passed, p.EntryWeights)
	if score < p.EntryThreshold {
		return nil, nil
	}
	reason := fmt.Sprintf("ema 20 crossed above ema 50, score %.2f >= %.2f", score, p.EntryThreshold)
	return entrySignal(symbol, s, p, score, reason, curr.Time), nil
}
