package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// PositionManager exclusively owns one run's portfolio: cash, open positions,
// the equity curve and the closed-trade ledger. Every mutation goes through
// it; strategies and the risk manager only ever see read-only snapshots.
type PositionManager struct {
	broker *PaperBroker
	logger *zap.Logger

	mu        sync.RWMutex
	cash      float64
	positions map[string]*domain.Position
	equity    []domain.EquityPoint
	trades    []domain.Trade
}

func NewPositionManager(initialCash float64, broker *PaperBroker, logger *zap.Logger) *PositionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionManager{
		broker:    broker,
		logger:    logger,
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Open executes an accepted entry. The cash debit and the position creation
// are atomic: either both happen or neither does, so a failed open leaves no
// partial state behind.
func (m *PositionManager) Open(sig *domain.Signal, sz *domain.Sizing, price float64, at time.Time) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[sig.Symbol]; exists {
		return nil, fmt.Errorf("open %s: %w", sig.Symbol, domain.ErrSymbolAlreadyOpen)
	}
	if sz.Shares <= 0 {
		return nil, fmt.Errorf("open %s: non-positive share count %d", sig.Symbol, sz.Shares)
	}

	fill := m.broker.Fill(sz.Shares, price)
	cost := fill.Notional + fill.Fees
	if cost > m.cash {
		return nil, fmt.Errorf("open %s: cost $%.2f exceeds cash $%.2f: %w",
			sig.Symbol, cost, m.cash, domain.ErrInsufficientCash)
	}

	pos := &domain.Position{
		Symbol:        sig.Symbol,
		Shares:        sz.Shares,
		AvgEntryPrice: fill.Price,
		OpenedAt:      at,
		StopLoss:      sz.StopLoss,
		TakeProfit:    sz.TakeProfit,
		TrailingPct:   sz.TrailingPct,
		HighWaterMark: fill.Price,
		MaxHoldUntil:  sz.MaxHoldUntil,
		Strategy:      sig.Strategy,
		Profile:       sig.Profile,
		EntryFees:     fill.Fees,
		LastPrice:     fill.Price,
	}
	m.cash -= cost
	m.positions[sig.Symbol] = pos

	m.logger.Info("Position opened",
		zap.String("symbol", sig.Symbol),
		zap.Int("shares", sz.Shares),
		zap.Float64("price", fill.Price),
		zap.Float64("cost", cost),
		zap.Float64("cash", m.cash),
		zap.String("sizing", sz.Reason))

	out := *pos
	return &out, nil
}

// Close sells the whole position at price, credits the cash balance and
// appends the immutable Trade to the ledger. A closed position is terminal;
// re-entering the symbol creates a brand-new Position.
func (m *PositionManager) Close(symbol string, price float64, at time.Time, reason domain.ExitReason) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", symbol, domain.ErrNoPosition)
	}

	fill := m.broker.Fill(pos.Shares, price)
	m.cash += fill.Notional - fill.Fees
	delete(m.positions, symbol)

	fees := pos.EntryFees + fill.Fees
	t := domain.Trade{
		Symbol:     symbol,
		Shares:     pos.Shares,
		EntryPrice: pos.AvgEntryPrice,
		ExitPrice:  price,
		EnteredAt:  pos.OpenedAt,
		ExitedAt:   at,
		PnL:        (price-pos.AvgEntryPrice)*float64(pos.Shares) - fees,
		Fees:       fees,
		ExitReason: reason,
		Strategy:   pos.Strategy,
		Profile:    pos.Profile,
	}
	if basis := pos.AvgEntryPrice * float64(pos.Shares); basis != 0 {
		t.PnLPct = t.PnL / basis
	}
	m.trades = append(m.trades, t)

	m.logger.Info("Position closed",
		zap.String("symbol", symbol),
		zap.Int("shares", t.Shares),
		zap.Float64("entry", t.EntryPrice),
		zap.Float64("exit", t.ExitPrice),
		zap.Float64("pnl", t.PnL),
		zap.Float64("cash", m.cash),
		zap.String("exit_reason", string(reason)))

	return &t, nil
}

// Mark updates the position's mark price and unrealized PnL, and ratchets a
// trailing stop upward from the new high-water mark. Stops are never
// loosened. No cash moves and no Trade is recorded.
func (m *PositionManager) Mark(symbol string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("mark %s: %w", symbol, domain.ErrNoPosition)
	}
	pos.LastPrice = price
	pos.UnrealizedPnL = (price - pos.AvgEntryPrice) * float64(pos.Shares)
	if pos.TrailingPct > 0 && price > pos.HighWaterMark {
		pos.HighWaterMark = price
		if next := price * (1 - pos.TrailingPct); next > pos.StopLoss {
			pos.StopLoss = next
		}
	}
	return nil
}

// CheckExit reports whether a protective exit triggered for symbol at this
// bar: stop-loss, take-profit or max-hold expiry, in that priority order.
// Levels are compared against the bar close, the same price the equity curve
// marks.
func (m *PositionManager) CheckExit(symbol string, bar domain.Bar) (domain.ExitReason, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return "", false
	}
	if pos.StopLoss > 0 && bar.Close <= pos.StopLoss {
		return domain.ExitStopLoss, true
	}
	if pos.TakeProfit > 0 && bar.Close >= pos.TakeProfit {
		return domain.ExitTakeProfit, true
	}
	if !pos.MaxHoldUntil.IsZero() && !bar.Time.Before(pos.MaxHoldUntil) {
		return domain.ExitMaxHold, true
	}
	return "", false
}

// RecordEquity appends one equity-curve point at the current marks and
// returns it.
func (m *PositionManager) RecordEquity(at time.Time) domain.EquityPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := domain.EquityPoint{Time: at, Value: m.totalValueLocked()}
	m.equity = append(m.equity, pt)
	return pt
}

func (m *PositionManager) totalValueLocked() float64 {
	total := m.cash
	for _, p := range m.positions {
		total += p.MarketValue()
	}
	return total
}

// View returns the read-only snapshot handed to strategies and risk checks.
func (m *PositionManager) View() domain.PortfolioView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := domain.PortfolioView{
		Cash:       m.cash,
		TotalValue: m.totalValueLocked(),
		Positions:  make(map[string]domain.PositionSnapshot, len(m.positions)),
	}
	for sym, p := range m.positions {
		view.Positions[sym] = domain.PositionSnapshot{
			Symbol:        sym,
			Shares:        p.Shares,
			AvgEntryPrice: p.AvgEntryPrice,
			LastPrice:     p.LastPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			OpenedAt:      p.OpenedAt,
		}
	}
	return view
}

// Position returns a copy of the open position for symbol, if any.
func (m *PositionManager) Position(symbol string) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenSymbols returns the symbols with open positions in sorted order, so
// callers iterating positions stay deterministic.
func (m *PositionManager) OpenSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.positions))
	for sym := range m.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// Cash returns the current cash balance.
func (m *PositionManager) Cash() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// Trades returns a copy of the closed-trade ledger in close order.
func (m *PositionManager) Trades() []domain.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Equity returns a copy of the recorded equity curve.
func (m *PositionManager) Equity() []domain.EquityPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.EquityPoint, len(m.equity))
	copy(out, m.equity)
	return out
}

// Snapshot deep-copies the portfolio for persistence between automation
// ticks. The trade ledger is not part of the snapshot; persisted trades live
// in the trade repository.
func (m *PositionManager) Snapshot() *domain.Portfolio {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &domain.Portfolio{
		Cash:      m.cash,
		Positions: make(map[string]*domain.Position, len(m.positions)),
		Equity:    make([]domain.EquityPoint, len(m.equity)),
	}
	for sym, p := range m.positions {
		cp := *p
		snap.Positions[sym] = &cp
	}
	copy(snap.Equity, m.equity)
	return snap
}

// Restore replaces the portfolio with a persisted snapshot.
func (m *PositionManager) Restore(p *domain.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cash = p.Cash
	m.positions = make(map[string]*domain.Position, len(p.Positions))
	for sym, pos := range p.Positions {
		cp := *pos
		m.positions[sym] = &cp
	}
	m.equity = make([]domain.EquityPoint, len(p.Equity))
	copy(m.equity, p.Equity)
}
