package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/yishaiam518/papertrader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			time DATETIME NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			indicators TEXT,
			PRIMARY KEY (symbol, time)
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			shares INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			entered_at DATETIME NOT NULL,
			exited_at DATETIME NOT NULL,
			pnl REAL NOT NULL,
			pnl_pct REAL NOT NULL,
			fees REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			strategy TEXT NOT NULL,
			profile TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, exited_at);`,
		`CREATE TABLE IF NOT EXISTS equity_points (
			run_id TEXT NOT NULL,
			time DATETIME NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, time)
		);`,
		`CREATE TABLE IF NOT EXISTS portfolios (
			run_id TEXT PRIMARY KEY,
			cash REAL NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS portfolio_positions (
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			shares INTEGER NOT NULL,
			avg_entry_price REAL NOT NULL,
			opened_at DATETIME NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			trailing_pct REAL NOT NULL,
			high_water_mark REAL NOT NULL,
			max_hold_until DATETIME NOT NULL,
			strategy TEXT NOT NULL,
			profile TEXT NOT NULL,
			entry_fees REAL NOT NULL,
			last_price REAL NOT NULL,
			PRIMARY KEY (run_id, symbol)
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// BarRepository Implementation

func (s *SQLiteStore) SaveBars(ctx context.Context, bars []domain.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Re-imports of the same file must not duplicate rows.
	query := `INSERT OR REPLACE INTO bars (symbol, time, open, high, low, close, volume, indicators)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range bars {
		b := &bars[i]
		ind, err := encodeIndicators(b.Indicators)
		if err != nil {
			return fmt.Errorf("encode indicators for %s at %s: %w", b.Symbol, b.Time, err)
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, ind); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) BarsRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	query := `SELECT symbol, time, open, high, low, close, volume, indicators FROM bars
			  WHERE symbol = ? AND time >= ? AND time <= ? ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

func (s *SQLiteStore) RecentBars(ctx context.Context, symbol string, before time.Time, limit int) ([]domain.Bar, error) {
	query := `SELECT symbol, time, open, high, low, close, volume, indicators FROM bars
			  WHERE symbol = ? AND time <= ? ORDER BY time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	// The query walks backwards from `before`; callers want chronological order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func scanBars(rows *sql.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ind sql.NullString
		if err := rows.Scan(&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &ind); err != nil {
			return nil, err
		}
		if ind.Valid && ind.String != "" {
			if err := json.Unmarshal([]byte(ind.String), &b.Indicators); err != nil {
				return nil, fmt.Errorf("decode indicators for %s at %s: %w", b.Symbol, b.Time, err)
			}
		}
		b.Time = b.Time.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func encodeIndicators(ind map[string]float64) (sql.NullString, error) {
	if len(ind) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ind)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, runID string, t *domain.Trade) error {
	query := `INSERT INTO trades (run_id, symbol, shares, entry_price, exit_price, entered_at, exited_at, pnl, pnl_pct, fees, exit_reason, strategy, profile)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		runID, t.Symbol, t.Shares, t.EntryPrice, t.ExitPrice, t.EnteredAt.UTC(), t.ExitedAt.UTC(),
		t.PnL, t.PnLPct, t.Fees, string(t.ExitReason), t.Strategy, t.Profile)
	return err
}

func (s *SQLiteStore) TradesByRun(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `SELECT symbol, shares, entry_price, exit_price, entered_at, exited_at, pnl, pnl_pct, fees, exit_reason, strategy, profile
			  FROM trades WHERE run_id = ? ORDER BY exited_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var reason string
		if err := rows.Scan(&t.Symbol, &t.Shares, &t.EntryPrice, &t.ExitPrice, &t.EnteredAt, &t.ExitedAt, &t.PnL, &t.PnLPct, &t.Fees, &reason, &t.Strategy, &t.Profile); err != nil {
			return nil, err
		}
		t.ExitReason = domain.ExitReason(reason)
		t.EnteredAt = t.EnteredAt.UTC()
		t.ExitedAt = t.ExitedAt.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SaveEquityPoint(ctx context.Context, runID string, p domain.EquityPoint) error {
	// A replayed tick re-marks the same instant; the curve keeps one row per time.
	query := `INSERT INTO equity_points (run_id, time, value)
			  VALUES (?, ?, ?)
			  ON CONFLICT(run_id, time) DO UPDATE SET value=excluded.value`
	_, err := s.db.ExecContext(ctx, query, runID, p.Time.UTC(), p.Value)
	return err
}

func (s *SQLiteStore) EquityCurve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	query := `SELECT time, value FROM equity_points WHERE run_id = ? ORDER BY time ASC`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, err
		}
		p.Time = p.Time.UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// PortfolioRepository Implementation

func (s *SQLiteStore) SavePortfolio(ctx context.Context, runID string, p *domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO portfolios (run_id, cash, updated_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(run_id) DO UPDATE SET cash=excluded.cash, updated_at=excluded.updated_at`
	if _, err := tx.ExecContext(ctx, query, runID, p.Cash, time.Now().UTC()); err != nil {
		return err
	}

	// Positions are replaced wholesale so closed symbols disappear.
	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_positions WHERE run_id = ?`, runID); err != nil {
		return err
	}

	insert := `INSERT INTO portfolio_positions (run_id, symbol, shares, avg_entry_price, opened_at, stop_loss, take_profit, trailing_pct, high_water_mark, max_hold_until, strategy, profile, entry_fees, last_price)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, pos := range p.Positions {
		if _, err := tx.ExecContext(ctx, insert,
			runID, pos.Symbol, pos.Shares, pos.AvgEntryPrice, pos.OpenedAt.UTC(),
			pos.StopLoss, pos.TakeProfit, pos.TrailingPct, pos.HighWaterMark, pos.MaxHoldUntil.UTC(),
			pos.Strategy, pos.Profile, pos.EntryFees, pos.LastPrice); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadPortfolio(ctx context.Context, runID string) (*domain.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cash FROM portfolios WHERE run_id = ?`, runID)

	var cash float64
	if err := row.Scan(&cash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	query := `SELECT symbol, shares, avg_entry_price, opened_at, stop_loss, take_profit, trailing_pct, high_water_mark, max_hold_until, strategy, profile, entry_fees, last_price
			  FROM portfolio_positions WHERE run_id = ?`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p := &domain.Portfolio{
		Cash:      cash,
		Positions: make(map[string]*domain.Position),
	}
	for rows.Next() {
		var pos domain.Position
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &pos.AvgEntryPrice, &pos.OpenedAt, &pos.StopLoss, &pos.TakeProfit, &pos.TrailingPct, &pos.HighWaterMark, &pos.MaxHoldUntil, &pos.Strategy, &pos.Profile, &pos.EntryFees, &pos.LastPrice); err != nil {
			return nil, err
		}
		pos.OpenedAt = pos.OpenedAt.UTC()
		pos.MaxHoldUntil = pos.MaxHoldUntil.UTC()
		pos.UnrealizedPnL = (pos.LastPrice - pos.AvgEntryPrice) * float64(pos.Shares)
		p.Positions[pos.Symbol] = &pos
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}
