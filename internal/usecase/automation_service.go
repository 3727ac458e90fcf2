package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// AutomationConfig parameterizes the paper-trading service for one run.
type AutomationConfig struct {
	RunID         string
	Symbols       []string
	Lookback      int // bars fetched per evaluation window
	InitialCash   float64
	Annualization domain.Annualization
}

// CycleSummary is the structured outcome of one automation tick.
type CycleSummary struct {
	At            time.Time `json:"at"`
	Evaluated     int       `json:"evaluated"`
	Signals       int       `json:"signals"`
	Opened        int       `json:"opened"`
	Closed        int       `json:"closed"`
	Rejected      int       `json:"rejected"`
	DataErrors    int       `json:"data_errors"`
	OpenPositions int       `json:"open_positions"`
	Equity        float64   `json:"equity"`
}

// AutomationService runs the engine cycle once per external tick over a
// watch-list. It has no internal timer: the driver calls RunCycle with its
// clock reading. Each tick restores the portfolio from the repository and
// persists it back afterwards, so ticks are independent and a crashed tick
// cannot corrupt the next one.
type AutomationService struct {
	cfg        AutomationConfig
	bars       domain.BarSource
	strategy   Strategy
	profile    domain.Profile
	risk       *RiskManager
	broker     *PaperBroker
	trades     domain.TradeRepository
	portfolios domain.PortfolioRepository
	logger     *zap.Logger

	mu      sync.Mutex
	lastBar map[string]time.Time // newest bar time already executed, per symbol
}

func NewAutomationService(
	cfg AutomationConfig,
	bars domain.BarSource,
	strategy Strategy,
	profile domain.Profile,
	risk *RiskManager,
	broker *PaperBroker,
	trades domain.TradeRepository,
	portfolios domain.PortfolioRepository,
	logger *zap.Logger,
) (*AutomationService, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("run %s: no symbols in watch-list", cfg.RunID)
	}
	if bars == nil || trades == nil || portfolios == nil {
		return nil, fmt.Errorf("run %s: bar source and repositories are required", cfg.RunID)
	}
	if strategy == nil {
		return nil, fmt.Errorf("run %s: strategy is required", cfg.RunID)
	}
	if err := ValidateProfile(strategy, profile); err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.RunID, err)
	}
	if cfg.Lookback < strategy.MinBars() {
		cfg.Lookback = strategy.MinBars()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationService{
		cfg:        cfg,
		bars:       bars,
		strategy:   strategy,
		profile:    profile,
		risk:       risk,
		broker:     broker,
		trades:     trades,
		portfolios: portfolios,
		logger:     logger,
		lastBar:    make(map[string]time.Time),
	}, nil
}

// RunCycle executes exactly one tick of the engine state machine at the
// supplied clock reading. Symbols whose data fails to load are skipped;
// whatever executed is persisted before the tick returns.
func (s *AutomationService) RunCycle(ctx context.Context, now time.Time) (*CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.restoreBook(ctx)
	if err != nil {
		return nil, err
	}
	runner, err := newCycleRunner(s.strategy, s.profile, s.risk, book, s.logger)
	if err != nil {
		return nil, err
	}

	summary := &CycleSummary{At: now}
	runner.setState(StateLoading)
	for _, sym := range sortedUnique(s.cfg.Symbols) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		bars, err := s.bars.RecentBars(ctx, sym, now, s.cfg.Lookback)
		if err != nil {
			s.logger.Warn("Skipping symbol, data load failed", zap.String("symbol", sym), zap.Error(err))
			summary.DataErrors++
			continue
		}
		if len(bars) == 0 {
			s.logger.Debug("No bars for symbol", zap.String("symbol", sym))
			summary.DataErrors++
			continue
		}
		latest := bars[len(bars)-1]
		if !latest.Time.After(s.lastBar[sym]) {
			continue // nothing new since the last tick
		}
		s.lastBar[sym] = latest.Time

		summary.Evaluated++
		out := runner.evalSymbol(sym, bars)
		if out.signaled {
			summary.Signals++
		}
		if out.opened {
			summary.Opened++
		}
		if out.closed {
			summary.Closed++
		}
		if out.rejected {
			summary.Rejected++
		}
	}

	runner.setState(StateRecording)
	point := book.RecordEquity(now)
	summary.Equity = point.Value
	summary.OpenPositions = len(book.OpenSymbols())

	if err := s.persist(ctx, book, point); err != nil {
		return summary, err
	}
	runner.setState(StateComplete)

	s.logger.Info("Cycle complete",
		zap.String("run_id", s.cfg.RunID),
		zap.Time("at", now),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("signals", summary.Signals),
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("rejected", summary.Rejected),
		zap.Int("data_errors", summary.DataErrors),
		zap.Int("open_positions", summary.OpenPositions),
		zap.Float64("equity", summary.Equity))
	return summary, nil
}

// restoreBook rebuilds the position manager from the persisted snapshot, or
// seeds a fresh one with the initial cash on the first tick.
func (s *AutomationService) restoreBook(ctx context.Context) (*PositionManager, error) {
	book := NewPositionManager(s.cfg.InitialCash, s.broker, s.logger)
	snap, err := s.portfolios.LoadPortfolio(ctx, s.cfg.RunID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("No persisted portfolio, starting fresh",
			zap.String("run_id", s.cfg.RunID),
			zap.Float64("cash", s.cfg.InitialCash))
		return book, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore portfolio %s: %w", s.cfg.RunID, err)
	}
	book.Restore(snap)
	return book, nil
}

// persist writes the tick's trades, the equity point and the portfolio
// snapshot. The ledger in book holds only trades closed during this tick,
// because the book is restored fresh each cycle.
func (s *AutomationService) persist(ctx context.Context, book *PositionManager, point domain.EquityPoint) error {
	for _, t := range book.Trades() {
		trade := t
		if err := s.trades.SaveTrade(ctx, s.cfg.RunID, &trade); err != nil {
			return fmt.Errorf("save trade %s: %w", t.Symbol, err)
		}
	}
	if err := s.trades.SaveEquityPoint(ctx, s.cfg.RunID, point); err != nil {
		return fmt.Errorf("save equity point: %w", err)
	}
	if err := s.portfolios.SavePortfolio(ctx, s.cfg.RunID, book.Snapshot()); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}
