package usecase

import (
	"fmt"
	"math"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// RiskManager converts accepted entry signals into share counts bounded by
// the portfolio-level limits, and fixes stop/take levels at acceptance time.
// Sizing shrinks to fit every constraint simultaneously; it rejects only when
// the shrunken position would be zero shares, a new symbol would exceed the
// concurrent-position cap, or the symbol is already open.
type RiskManager struct {
	limits  domain.RiskLimits
	feeRate float64 // broker charge per side, reserved so a buy cannot overdraw cash
}

func NewRiskManager(limits domain.RiskLimits, feeRate float64) (*RiskManager, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}
	if feeRate < 0 {
		return nil, fmt.Errorf("fee rate must not be negative, got %v", feeRate)
	}
	return &RiskManager{limits: limits, feeRate: feeRate}, nil
}

// Limits returns the immutable limit set this manager enforces.
func (m *RiskManager) Limits() domain.RiskLimits { return m.limits }

// SizePosition applies the intelligent-sizing policy: candidate value is the
// minimum of the optimal position value (max_position_size_pct of total
// value), the single-transaction cap (transaction_limit_pct of tradable
// cash) and the cash actually spendable after the fee reserve. The returned
// Sizing names the binding constraint; errors wrap the rejection sentinels.
func (m *RiskManager) SizePosition(sig *domain.Signal, bar domain.Bar, p domain.Profile, view domain.PortfolioView) (*domain.Sizing, error) {
	if view.HasPosition(sig.Symbol) {
		return nil, fmt.Errorf("%s: %w", sig.Symbol, domain.ErrSymbolAlreadyOpen)
	}
	if len(view.Positions) >= m.limits.MaxPositions {
		return nil, fmt.Errorf("%d of %d positions open: %w",
			len(view.Positions), m.limits.MaxPositions, domain.ErrMaxPositionsReached)
	}
	price := bar.Close
	if price <= 0 {
		return nil, fmt.Errorf("%s: non-positive price %v: %w", sig.Symbol, price, domain.ErrInsufficientCash)
	}

	cashForTrading := view.Cash - m.limits.SafeCashFloor
	if cashForTrading <= 0 {
		return nil, fmt.Errorf("cash $%.2f at or below safe floor $%.2f: %w",
			view.Cash, m.limits.SafeCashFloor, domain.ErrInsufficientCash)
	}

	optimal := view.TotalValue * m.limits.MaxPositionPct
	txLimit := cashForTrading * m.limits.TransactionPct
	affordable := cashForTrading / (1 + m.feeRate)

	value := optimal
	binding := fmt.Sprintf("position cap %.1f%% of portfolio", m.limits.MaxPositionPct*100)
	if txLimit < value {
		value = txLimit
		binding = fmt.Sprintf("transaction limit %.1f%% of tradable cash", m.limits.TransactionPct*100)
	}
	if affordable < value {
		value = affordable
		binding = "cash available after fee reserve"
	}

	shares := int(math.Floor(value / price))
	if shares <= 0 {
		return nil, fmt.Errorf("sized value $%.2f buys no shares at $%.2f: %w",
			value, price, domain.ErrInsufficientCash)
	}

	stop, take := m.ExitLevels(price, bar, p)
	sz := &domain.Sizing{
		Shares:     shares,
		Value:      float64(shares) * price,
		StopLoss:   stop,
		TakeProfit: take,
		Reason: fmt.Sprintf("%d shares ($%.2f) bound by %s",
			shares, float64(shares)*price, binding),
	}
	if m.limits.StopMode == domain.StopTrailing {
		sz.TrailingPct = stopPct(p, m.limits)
	}
	if days := holdDays(p, m.limits); days > 0 {
		sz.MaxHoldUntil = sig.GeneratedAt.AddDate(0, 0, days)
	}
	return sz, nil
}

// ExitLevels computes the stop-loss and take-profit prices fixed at
// acceptance. ATR mode falls back to the fixed percentage when the ATR
// column is absent from the bar; a zero take-profit means none.
func (m *RiskManager) ExitLevels(entry float64, bar domain.Bar, p domain.Profile) (stop, take float64) {
	sl := stopPct(p, m.limits)
	tp := takePct(p, m.limits)

	if sl > 0 {
		stop = entry * (1 - sl)
	}
	if tp > 0 {
		take = entry * (1 + tp)
	}
	if m.limits.StopMode == domain.StopATR {
		col := m.limits.ATRColumn
		if col == "" {
			col = domain.IndATR
		}
		if atr, ok := bar.Indicator(col); ok && atr > 0 {
			stop = entry - m.limits.ATRMultiplier*atr
		}
	}
	if stop < 0 {
		stop = 0
	}
	return stop, take
}

// Profile levels override the run-wide defaults when set.

func stopPct(p domain.Profile, limits domain.RiskLimits) float64 {
	if p.StopLossPct > 0 {
		return p.StopLossPct
	}
	return limits.StopLossPct
}

func takePct(p domain.Profile, limits domain.RiskLimits) float64 {
	if p.TakeProfitPct > 0 {
		return p.TakeProfitPct
	}
	return limits.TakeProfitPct
}

func holdDays(p domain.Profile, limits domain.RiskLimits) int {
	if p.MaxHoldDays > 0 {
		return p.MaxHoldDays
	}
	return limits.MaxHoldDays
}
