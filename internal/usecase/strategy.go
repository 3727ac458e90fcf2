package usecase

import (
	"fmt"
	"time"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// Condition names understood by the strategy variants. Profile entry weights
// are keyed by these; a weight on a condition the variant does not evaluate
// is a configuration error.
const (
	CondCrossover    = "crossover"
	CondRSIFilter    = "rsi_filter"
	CondTrendFilter  = "trend_filter"
	CondVolumeFilter = "volume_filter"
	CondPriceFilter  = "price_filter"
)

// Strategy maps a price/indicator window to an entry or exit signal. The
// window is chronological with the current bar last. Implementations are
// pure: the same window and profile always produce the same answer, and a
// missing indicator column means "no signal", never a crash.
type Strategy interface {
	Name() string
	// MinBars is the minimum window length; shorter windows return
	// domain.ErrInsufficientData.
	MinBars() int
	// Conditions lists the weight keys Evaluate understands.
	Conditions() []string
	Evaluate(symbol string, window []domain.Bar, p domain.Profile) (*domain.Signal, error)
}

// NewStrategy returns the variant registered under name. The set is closed;
// an unknown name is a configuration error and fails the run at start.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "macd":
		return &MACDStrategy{}, nil
	case "rsi":
		return &RSIStrategy{}, nil
	case "crossover":
		return &CrossoverStrategy{}, nil
	case "bollinger":
		return &BollingerStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, StrategyNames())
	}
}

// StrategyNames lists the closed set of variants.
func StrategyNames() []string {
	return []string{"bollinger", "crossover", "macd", "rsi"}
}

// ValidateProfile rejects profiles whose entry weights reference conditions
// the strategy does not evaluate. Called at engine construction so bad
// configuration fails before the first cycle.
func ValidateProfile(s Strategy, p domain.Profile) error {
	known := make(map[string]bool, len(s.Conditions()))
	for _, c := range s.Conditions() {
		known[c] = true
	}
	for name := range p.EntryWeights {
		if !known[name] {
			return fmt.Errorf("profile %q: strategy %q has no condition %q (known: %v)",
				p.Name, s.Name(), name, s.Conditions())
		}
	}
	return nil
}

// crossesUp reports a strict upward cross of boundary between two readings.
func crossesUp(prev, curr, boundary float64) bool {
	return prev < boundary && curr >= boundary
}

// crossesDown reports a strict downward cross of boundary.
func crossesDown(prev, curr, boundary float64) bool {
	return prev > boundary && curr <= boundary
}

// scoreConditions combines passed sub-conditions into one score normalized
// by total weight, so the result stays in [0,1] whatever the weights are.
func scoreConditions(passed map[string]bool, weights map[string]float64) float64 {
	var total, earned float64
	for name, w := range weights {
		if w <= 0 {
			continue
		}
		total += w
		if passed[name] {
			earned += w
		}
	}
	if total == 0 {
		return 0
	}
	return earned / total
}

// lastTwo returns the previous and current bar of the window.
func lastTwo(window []domain.Bar) (prev, curr domain.Bar) {
	n := len(window)
	return window[n-2], window[n-1]
}

func insufficientData(s Strategy, have int) error {
	return fmt.Errorf("%s: need %d bars, have %d: %w", s.Name(), s.MinBars(), have, domain.ErrInsufficientData)
}

func entrySignal(symbol string, s Strategy, p domain.Profile, confidence float64, reason string, at time.Time) *domain.Signal {
	return &domain.Signal{
		Symbol:      symbol,
		Direction:   domain.EnterLong,
		Strategy:    s.Name(),
		Profile:     p.Name,
		Confidence:  confidence,
		Reason:      reason,
		GeneratedAt: at,
	}
}

func exitSignal(symbol string, s Strategy, p domain.Profile, reason string, at time.Time) *domain.Signal {
	return &domain.Signal{
		Symbol:      symbol,
		Direction:   domain.ExitLong,
		Strategy:    s.Name(),
		Profile:     p.Name,
		Confidence:  1.0,
		Reason:      reason,
		GeneratedAt: at,
	}
}
