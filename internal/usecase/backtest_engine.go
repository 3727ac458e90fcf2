package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// EngineState tracks where the orchestration cycle is. Transitions are
// logged at debug level.
type EngineState string

const (
	StateIdle       EngineState = "IDLE"
	StateLoading    EngineState = "LOADING_DATA"
	StateEvaluating EngineState = "EVALUATING_STRATEGY"
	StateRiskCheck  EngineState = "RISK_CHECK"
	StateExecuting  EngineState = "EXECUTING"
	StateRecording  EngineState = "RECORDING"
	StateComplete   EngineState = "COMPLETE"
)

// RunContext carries everything one run needs. There are no process-wide
// singletons; two runs never share state.
type RunContext struct {
	RunID         string
	Symbols       []string
	From          time.Time
	To            time.Time
	Lookback      int // bars per evaluation window
	InitialCash   float64
	Annualization domain.Annualization
}

// cycleRunner is the per-symbol pipeline shared by the backtest and the
// automation tick: protective exits first, then strategy evaluation, risk
// check and execution, with the error taxonomy applied at each step.
type cycleRunner struct {
	strategy Strategy
	profile  domain.Profile
	risk     *RiskManager
	book     *PositionManager
	logger   *zap.Logger

	state    EngineState
	rejected []domain.RejectedSignal
}

func newCycleRunner(strategy Strategy, profile domain.Profile, risk *RiskManager, book *PositionManager, logger *zap.Logger) (*cycleRunner, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if risk == nil {
		return nil, fmt.Errorf("risk manager is required")
	}
	if book == nil {
		return nil, fmt.Errorf("position manager is required")
	}
	if err := ValidateProfile(strategy, profile); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cycleRunner{
		strategy: strategy,
		profile:  profile,
		risk:     risk,
		book:     book,
		logger:   logger,
		state:    StateIdle,
		rejected: []domain.RejectedSignal{},
	}, nil
}

func (c *cycleRunner) setState(s EngineState) {
	if c.state == s {
		return
	}
	c.state = s
	c.logger.Debug("Engine state", zap.String("state", string(s)))
}

// evalOutcome summarizes what one symbol's cycle did.
type evalOutcome struct {
	signaled bool
	opened   bool
	closed   bool
	rejected bool
}

// evalSymbol runs one symbol through the cycle at the window's last bar.
func (c *cycleRunner) evalSymbol(symbol string, window []domain.Bar) evalOutcome {
	var out evalOutcome
	bar := window[len(window)-1]

	// 1. Mark the open position so exits and sizing see the current price,
	// then apply protective exits before any new decision.
	if _, ok := c.book.Position(symbol); ok {
		if err := c.book.Mark(symbol, bar.Close); err != nil {
			c.logger.Error("Mark failed", zap.String("symbol", symbol), zap.Error(err))
			return out
		}
		if reason, hit := c.book.CheckExit(symbol, bar); hit {
			c.setState(StateExecuting)
			if _, err := c.book.Close(symbol, bar.Close, bar.Time, reason); err != nil {
				c.logger.Error("Protective close failed", zap.String("symbol", symbol), zap.Error(err))
				return out
			}
			out.closed = true
			// The symbol exited this bar; no re-entry within the same cycle.
			return out
		}
	}

	// 2. Strategy evaluation. Data problems mean "no signal", never an abort.
	c.setState(StateEvaluating)
	sig, err := c.strategy.Evaluate(symbol, window, c.profile)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			c.logger.Debug("No signal, insufficient data", zap.String("symbol", symbol), zap.Error(err))
			return out
		}
		c.logger.Warn("Strategy evaluation failed", zap.String("symbol", symbol), zap.Error(err))
		return out
	}
	if sig == nil {
		return out
	}
	out.signaled = true

	switch sig.Direction {
	case domain.ExitLong:
		if _, ok := c.book.Position(symbol); !ok {
			return out // nothing to exit
		}
		c.setState(StateExecuting)
		if _, err := c.book.Close(symbol, bar.Close, bar.Time, domain.ExitSignal); err != nil {
			c.logger.Error("Signal close failed", zap.String("symbol", symbol), zap.Error(err))
			return out
		}
		out.closed = true

	case domain.EnterLong:
		// 3. Risk check, then execution. Rejections are recorded with their
		// reason so "no opportunity" and "rejected opportunity" stay
		// distinguishable in the report.
		c.setState(StateRiskCheck)
		sz, err := c.risk.SizePosition(sig, bar, c.profile, c.book.View())
		if err != nil {
			c.reject(symbol, err, bar.Time)
			out.rejected = true
			return out
		}
		c.setState(StateExecuting)
		if _, err := c.book.Open(sig, sz, bar.Close, bar.Time); err != nil {
			c.logger.Error("Open failed after risk acceptance", zap.String("symbol", symbol), zap.Error(err))
			c.reject(symbol, err, bar.Time)
			out.rejected = true
			return out
		}
		out.opened = true
	}
	return out
}

func (c *cycleRunner) reject(symbol string, err error, at time.Time) {
	c.rejected = append(c.rejected, domain.RejectedSignal{Symbol: symbol, Reason: err.Error(), Time: at})
	c.logger.Info("Signal rejected", zap.String("symbol", symbol), zap.String("reason", err.Error()))
}

// BacktestEngine replays a historical range through the strategy, risk and
// execution pipeline. Runs are deterministic: the same bars and
// configuration always produce the same ledger and performance report.
type BacktestEngine struct {
	run  RunContext
	bars domain.BarSource
	*cycleRunner
}

func NewBacktestEngine(run RunContext, bars domain.BarSource, strategy Strategy, profile domain.Profile, risk *RiskManager, book *PositionManager, logger *zap.Logger) (*BacktestEngine, error) {
	if run.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if len(run.Symbols) == 0 {
		return nil, fmt.Errorf("run %s: no symbols", run.RunID)
	}
	if bars == nil {
		return nil, fmt.Errorf("run %s: bar source is required", run.RunID)
	}
	runner, err := newCycleRunner(strategy, profile, risk, book, logger)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	if run.Lookback < strategy.MinBars() {
		run.Lookback = strategy.MinBars()
	}
	return &BacktestEngine{run: run, bars: bars, cycleRunner: runner}, nil
}

// State exposes the current engine state for supervision.
func (e *BacktestEngine) State() EngineState { return e.state }

// Run executes the backtest over the configured range. A symbol whose data
// fails to load is skipped without aborting the others. Cancellation is
// honored between bars: an aborted run returns the report assembled so far
// together with ctx.Err().
func (e *BacktestEngine) Run(ctx context.Context) (*domain.RunReport, error) {
	startedAt := time.Now()

	e.setState(StateLoading)
	series := make(map[string][]domain.Bar, len(e.run.Symbols))
	symbols := make([]string, 0, len(e.run.Symbols))
	for _, sym := range sortedUnique(e.run.Symbols) {
		bars, err := e.bars.BarsRange(ctx, sym, e.run.From, e.run.To)
		if err != nil {
			e.logger.Warn("Skipping symbol, data load failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			e.logger.Warn("Skipping symbol, no bars in range", zap.String("symbol", sym))
			continue
		}
		series[sym] = bars
		symbols = append(symbols, sym)
	}
	e.logger.Info("Backtest started",
		zap.String("run_id", e.run.RunID),
		zap.String("strategy", e.strategy.Name()),
		zap.String("profile", e.profile.Name),
		zap.Strings("symbols", symbols),
		zap.Float64("initial_cash", e.run.InitialCash))

	timeline := buildTimeline(series)
	cursor := make(map[string]int, len(symbols))

	var runErr error
	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Run aborted between bars", zap.Error(err))
			runErr = err
			break
		}
		for _, sym := range symbols {
			bars := series[sym]
			i := cursor[sym]
			if i >= len(bars) || !bars[i].Time.Equal(ts) {
				continue // no bar for this symbol at ts
			}
			cursor[sym] = i + 1
			e.evalSymbol(sym, windowEnding(bars, i, e.run.Lookback))
		}
		e.setState(StateRecording)
		e.book.RecordEquity(ts)
	}

	if runErr == nil {
		e.setState(StateComplete)
	}
	report := e.buildReport(startedAt, time.Now())
	e.logger.Info("Backtest finished",
		zap.String("run_id", e.run.RunID),
		zap.Int("trades", len(report.Trades)),
		zap.Int("rejected", len(report.RejectedSignals)),
		zap.Float64("final_value", report.FinalValue))
	return report, runErr
}

func (e *BacktestEngine) buildReport(startedAt, finishedAt time.Time) *domain.RunReport {
	trades := e.book.Trades()
	equity := e.book.Equity()
	return &domain.RunReport{
		RunID:           e.run.RunID,
		Strategy:        e.strategy.Name(),
		Profile:         e.profile.Name,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		InitialCash:     e.run.InitialCash,
		FinalValue:      e.book.View().TotalValue,
		Trades:          trades,
		EquityCurve:     equity,
		Performance:     ComputePerformance(trades, equity, e.run.Annualization),
		RejectedSignals: e.rejected,
	}
}

// sortedUnique returns the symbols deduplicated and sorted, keeping every
// iteration over them deterministic.
func sortedUnique(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// buildTimeline merges the per-symbol series into one chronological sequence
// of distinct bar timestamps.
func buildTimeline(series map[string][]domain.Bar) []time.Time {
	seen := make(map[int64]time.Time)
	for _, bars := range series {
		for _, b := range bars {
			seen[b.Time.UnixNano()] = b.Time
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

// windowEnding slices the lookback window ending at index i, inclusive.
func windowEnding(bars []domain.Bar, i, lookback int) []domain.Bar {
	start := i - lookback + 1
	if start < 0 {
		start = 0
	}
	return bars[start : i+1]
}
