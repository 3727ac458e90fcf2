package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// LoadStoredReport rebuilds a run report from the persisted ledger and
// equity curve, recomputing the performance statistics. Rejected signals are
// not persisted, so the rebuilt report carries none.
func LoadStoredReport(ctx context.Context, runID string, repo domain.TradeRepository, ann domain.Annualization) (*domain.RunReport, error) {
	trades, err := repo.TradesByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", runID, err)
	}
	equity, err := repo.EquityCurve(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load equity curve for %s: %w", runID, err)
	}

	report := &domain.RunReport{
		RunID:           runID,
		Trades:          trades,
		EquityCurve:     equity,
		Performance:     ComputePerformance(trades, equity, ann),
		RejectedSignals: []domain.RejectedSignal{},
	}
	if len(trades) > 0 {
		report.Strategy = trades[0].Strategy
		report.Profile = trades[0].Profile
	}
	if len(equity) > 0 {
		report.StartedAt = equity[0].Time
		report.FinishedAt = equity[len(equity)-1].Time
		report.InitialCash = equity[0].Value
		report.FinalValue = equity[len(equity)-1].Value
	}
	return report, nil
}

// WriteReportJSON writes the full run report, indented, to path.
func WriteReportJSON(report *domain.RunReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteTradesCSV exports the closed-trade ledger for spreadsheet analysis.
func WriteTradesCSV(trades []domain.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"symbol", "shares", "entry_time", "exit_time", "entry", "exit",
		"pnl_dollars", "pnl_pct", "fees", "exit_reason", "strategy", "profile",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write([]string{
			t.Symbol,
			strconv.Itoa(t.Shares),
			t.EnteredAt.Format(time.RFC3339),
			t.ExitedAt.Format(time.RFC3339),
			formatF(t.EntryPrice),
			formatF(t.ExitPrice),
			formatF(t.PnL),
			formatF(t.PnLPct),
			formatF(t.Fees),
			string(t.ExitReason),
			t.Strategy,
			t.Profile,
		}); err != nil {
			return err
		}
	}
	return nil
}

// WriteEquityCSV exports the equity curve.
func WriteEquityCSV(points []domain.EquityPoint, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"time", "value"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := w.Write([]string{p.Time.Format(time.RFC3339), formatF(p.Value)}); err != nil {
			return err
		}
	}
	return nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
