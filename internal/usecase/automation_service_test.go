package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yishaiam518/papertrader/internal/domain"
	"github.com/yishaiam518/papertrader/internal/usecase"
)

// memRepos is an in-memory TradeRepository and PortfolioRepository, standing
// in for the sqlite store so tick persistence can be inspected directly.
type memRepos struct {
	trades map[string][]domain.Trade
	equity map[string][]domain.EquityPoint
	ports  map[string]*domain.Portfolio
}

func newMemRepos() *memRepos {
	return &memRepos{
		trades: make(map[string][]domain.Trade),
		equity: make(map[string][]domain.EquityPoint),
		ports:  make(map[string]*domain.Portfolio),
	}
}

func (r *memRepos) SaveTrade(_ context.Context, runID string, t *domain.Trade) error {
	r.trades[runID] = append(r.trades[runID], *t)
	return nil
}

func (r *memRepos) TradesByRun(_ context.Context, runID string) ([]domain.Trade, error) {
	out := make([]domain.Trade, len(r.trades[runID]))
	copy(out, r.trades[runID])
	return out, nil
}

func (r *memRepos) SaveEquityPoint(_ context.Context, runID string, p domain.EquityPoint) error {
	r.equity[runID] = append(r.equity[runID], p)
	return nil
}

func (r *memRepos) EquityCurve(_ context.Context, runID string) ([]domain.EquityPoint, error) {
	out := make([]domain.EquityPoint, len(r.equity[runID]))
	copy(out, r.equity[runID])
	return out, nil
}

func (r *memRepos) SavePortfolio(_ context.Context, runID string, p *domain.Portfolio) error {
	r.ports[runID] = p
	return nil
}

func (r *memRepos) LoadPortfolio(_ context.Context, runID string) (*domain.Portfolio, error) {
	p, ok := r.ports[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func newTestService(t *testing.T, repos *memRepos, bars domain.BarSource, symbols ...string) *usecase.AutomationService {
	t.Helper()
	strategy, err := usecase.NewStrategy("macd")
	require.NoError(t, err)
	broker := usecase.NewPaperBroker(0, 0)
	risk, err := usecase.NewRiskManager(defaultLimits(), broker.FeeRate())
	require.NoError(t, err)

	cfg := usecase.AutomationConfig{
		RunID:         "paper-test",
		Symbols:       symbols,
		Lookback:      40,
		InitialCash:   100000,
		Annualization: domain.DefaultAnnualization(),
	}
	svc, err := usecase.NewAutomationService(cfg, bars, strategy, crossOnlyProfile(), risk, broker, repos, repos, nil)
	require.NoError(t, err)
	return svc
}

func TestAutomationService_TickLifecycle(t *testing.T) {
	ctx := context.Background()
	repos := newMemRepos()
	bars := &fakeBarSource{series: map[string][]domain.Bar{
		"AAPL": macdSeries("AAPL", 40, 30, 36),
	}}

	svc := newTestService(t, repos, bars, "AAPL")
	entryTick := windowStart.AddDate(0, 0, 30)
	exitTick := windowStart.AddDate(0, 0, 36)

	// First tick lands on the staged up-cross: 17 shares at 115 open and
	// equity stays at the initial 100000 (cash plus marked position).
	summary, err := svc.RunCycle(ctx, entryTick)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 1, summary.Signals)
	assert.Equal(t, 1, summary.Opened)
	assert.Equal(t, 1, summary.OpenPositions)
	assert.InDelta(t, 100000, summary.Equity, 0.01)

	snap, err := repos.LoadPortfolio(ctx, "paper-test")
	require.NoError(t, err)
	assert.InDelta(t, 98045, snap.Cash, 0.01)
	require.Contains(t, snap.Positions, "AAPL")
	assert.Equal(t, 17, snap.Positions["AAPL"].Shares)
	assert.Empty(t, repos.trades["paper-test"])

	// Re-ticking on the same bar does nothing: the bar was already executed.
	summary, err = svc.RunCycle(ctx, entryTick)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Evaluated)
	assert.Equal(t, 0, summary.Opened)
	assert.Equal(t, 1, summary.OpenPositions)

	// A restarted service has no bar memory, but the restored portfolio
	// makes the replayed entry a rejection instead of a duplicate open.
	restarted := newTestService(t, repos, bars, "AAPL")
	summary, err = restarted.RunCycle(ctx, entryTick)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 0, summary.Opened)
	assert.Equal(t, 1, summary.OpenPositions)

	snap, err = repos.LoadPortfolio(ctx, "paper-test")
	require.NoError(t, err)
	require.Contains(t, snap.Positions, "AAPL")
	assert.Equal(t, 17, snap.Positions["AAPL"].Shares, "replayed tick must not pyramid the position")

	// The down-cross tick closes the position and persists the trade.
	summary, err = restarted.RunCycle(ctx, exitTick)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Closed)
	assert.Equal(t, 0, summary.OpenPositions)
	assert.InDelta(t, 100051, summary.Equity, 0.01)

	trades, err := repos.TradesByRun(ctx, "paper-test")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "AAPL", trades[0].Symbol)
	assert.InDelta(t, 51, trades[0].PnL, 0.01)
	assert.Equal(t, domain.ExitSignal, trades[0].ExitReason)

	snap, err = repos.LoadPortfolio(ctx, "paper-test")
	require.NoError(t, err)
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 100051, snap.Cash, 0.01)

	// Four completed ticks, four equity points.
	curve, err := repos.EquityCurve(ctx, "paper-test")
	require.NoError(t, err)
	assert.Len(t, curve, 4)
}

func TestAutomationService_DataErrors(t *testing.T) {
	ctx := context.Background()
	repos := newMemRepos()
	bars := &fakeBarSource{
		series: map[string][]domain.Bar{
			"AAPL": macdSeries("AAPL", 40, 30, 36),
		},
		errs: map[string]error{"MSFT": errors.New("feed down")},
	}
	svc := newTestService(t, repos, bars, "AAPL", "MSFT")

	summary, err := svc.RunCycle(ctx, windowStart.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DataErrors, "failed symbol counts as a data error")
	assert.Equal(t, 1, summary.Evaluated, "healthy symbol still evaluates")
	assert.Equal(t, 1, summary.Opened)

	// A tick before any bar exists is a data error too, not a crash.
	summary, err = svc.RunCycle(ctx, windowStart.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DataErrors)
	assert.Equal(t, 0, summary.Evaluated)
}

func TestNewAutomationService_Validation(t *testing.T) {
	repos := newMemRepos()
	bars := &fakeBarSource{series: map[string][]domain.Bar{}}
	strategy, err := usecase.NewStrategy("macd")
	require.NoError(t, err)
	broker := usecase.NewPaperBroker(0, 0)
	risk, err := usecase.NewRiskManager(defaultLimits(), 0)
	require.NoError(t, err)

	base := usecase.AutomationConfig{
		RunID:       "paper-test",
		Symbols:     []string{"AAPL"},
		InitialCash: 100000,
	}

	noID := base
	noID.RunID = ""
	_, err = usecase.NewAutomationService(noID, bars, strategy, crossOnlyProfile(), risk, broker, repos, repos, nil)
	assert.Error(t, err, "missing run id")

	noSymbols := base
	noSymbols.Symbols = nil
	_, err = usecase.NewAutomationService(noSymbols, bars, strategy, crossOnlyProfile(), risk, broker, repos, repos, nil)
	assert.Error(t, err, "empty watch-list")

	_, err = usecase.NewAutomationService(base, nil, strategy, crossOnlyProfile(), risk, broker, repos, repos, nil)
	assert.Error(t, err, "nil bar source")

	_, err = usecase.NewAutomationService(base, bars, strategy, crossOnlyProfile(), risk, broker, nil, repos, nil)
	assert.Error(t, err, "nil trade repository")

	badProfile := crossOnlyProfile()
	badProfile.EntryWeights["bogus"] = 1
	_, err = usecase.NewAutomationService(base, bars, strategy, badProfile, risk, broker, repos, repos, nil)
	assert.Error(t, err, "profile with unknown condition")
}
