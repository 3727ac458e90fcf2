package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yishaiam518/papertrader/internal/config"
	"github.com/yishaiam518/papertrader/internal/domain"
	"github.com/yishaiam518/papertrader/internal/infrastructure/logger"
	"github.com/yishaiam518/papertrader/internal/infrastructure/marketdata"
	"github.com/yishaiam518/papertrader/internal/infrastructure/storage"
	"github.com/yishaiam518/papertrader/internal/usecase"
)

const version = "0.3.0"

// newBacktestCmd creates the backtest command.
func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a historical range through the engine",
		Long: `Run the full evaluation/risk/execution cycle over stored historical bars
and print the performance report.
Example: papertrader backtest --from=2024-01-02 --to=2024-06-28 --strategy=macd --profile=balanced`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runBacktestCommand(cmd, cfg)
		},
	}

	cmd.Flags().String("from", "", "range start, YYYY-MM-DD")
	cmd.Flags().String("to", "", "range end, YYYY-MM-DD")
	cmd.Flags().String("strategy", "", "strategy name (defaults to config)")
	cmd.Flags().String("profile", "", "profile name (defaults to config)")
	cmd.Flags().String("symbols", "", "comma-separated symbols (defaults to config watchlist)")
	cmd.Flags().String("run-id", "", "run identifier (defaults to a timestamped id)")
	cmd.Flags().String("out", "", "write the full report as JSON to this path")
	cmd.Flags().String("trades-csv", "", "write the trade ledger as CSV to this path")
	cmd.Flags().String("equity-csv", "", "write the equity curve as CSV to this path")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

// newRunCmd creates the automation command.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Paper-trade the watch-list on a fixed interval",
		Long: `Drive the engine cycle on a ticker until interrupted. Each tick evaluates
the freshest stored bars, executes simulated fills and persists the
portfolio, so restarts resume where the last tick left off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runAutomationCommand(cmd, cfg)
		},
	}

	cmd.Flags().String("strategy", "", "strategy name (defaults to config)")
	cmd.Flags().String("profile", "", "profile name (defaults to config)")
	cmd.Flags().Bool("once", false, "run a single cycle and exit")

	return cmd
}

// newImportCmd creates the import command.
func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Import a CSV bar file into the database",
		Long: `Load one symbol's OHLCV series (plus any precomputed indicator columns)
from a CSV file into the bar store.
Example: papertrader import data/AAPL_daily.csv --symbol=AAPL`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			symbol, _ := cmd.Flags().GetString("symbol")
			return runImportCommand(cfg, args[0], symbol)
		},
	}

	cmd.Flags().String("symbol", "", "symbol the file belongs to")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

// newReportCmd creates the report command.
func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [RUN_ID]",
		Short: "Rebuild the performance report for a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runReportCommand(cmd, cfg, args[0])
		},
	}

	cmd.Flags().String("out", "", "write the full report as JSON to this path")
	cmd.Flags().String("trades-csv", "", "write the trade ledger as CSV to this path")
	cmd.Flags().String("equity-csv", "", "write the equity curve as CSV to this path")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("papertrader v%s\n", version)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// runBacktestCommand executes the backtest workflow.
func runBacktestCommand(cmd *cobra.Command, cfg *config.Config) error {
	ctx := context.Background()

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return fmt.Errorf("invalid --from, use YYYY-MM-DD: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return fmt.Errorf("invalid --to, use YYYY-MM-DD: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	// Make the end date inclusive of its whole trading day.
	to = to.Add(24*time.Hour - time.Nanosecond)

	symbols := cfg.Watchlist
	if s, _ := cmd.Flags().GetString("symbols"); s != "" {
		symbols = splitSymbols(s)
	}

	runID, _ := cmd.Flags().GetString("run-id")
	if runID == "" {
		runID = "backtest-" + time.Now().Format("20060102-150405")
	}

	// 1. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	// 2. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init sqlite: %w", err)
	}
	defer store.Close()

	// 3. Build the pipeline
	strategy, profile, err := resolveStrategy(cmd, cfg)
	if err != nil {
		return err
	}
	broker := usecase.NewPaperBroker(cfg.Broker.CommissionPct, cfg.Broker.SlippagePct)
	risk, err := usecase.NewRiskManager(cfg.RiskLimits(), broker.FeeRate())
	if err != nil {
		return err
	}
	book := usecase.NewPositionManager(cfg.Portfolio.InitialCash, broker, log)

	engine, err := usecase.NewBacktestEngine(usecase.RunContext{
		RunID:         runID,
		Symbols:       symbols,
		From:          from,
		To:            to,
		Lookback:      cfg.Automation.Lookback,
		InitialCash:   cfg.Portfolio.InitialCash,
		Annualization: cfg.Annualization(),
	}, store, strategy, profile, risk, book, log)
	if err != nil {
		return err
	}

	// 4. Run
	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// 5. Persist the ledger so `papertrader report` can rebuild it later.
	for i := range report.Trades {
		if err := store.SaveTrade(ctx, runID, &report.Trades[i]); err != nil {
			return fmt.Errorf("persist trade: %w", err)
		}
	}
	for _, p := range report.EquityCurve {
		if err := store.SaveEquityPoint(ctx, runID, p); err != nil {
			return fmt.Errorf("persist equity point: %w", err)
		}
	}

	// 6. Export and summarize
	if err := exportReport(cmd, report); err != nil {
		return err
	}
	printSummary(report)
	return nil
}

// runAutomationCommand drives the engine cycle on a ticker until interrupted.
func runAutomationCommand(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Automation.RunID == "" {
		return fmt.Errorf("automation.run_id is required for paper-trading")
	}
	if len(cfg.Watchlist) == 0 {
		return fmt.Errorf("watchlist is empty")
	}

	// 1. Init Logger
	var log *zap.Logger
	var err error
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	// 2. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init sqlite: %w", err)
	}
	defer store.Close()

	// 3. Build the pipeline
	strategy, profile, err := resolveStrategy(cmd, cfg)
	if err != nil {
		return err
	}
	broker := usecase.NewPaperBroker(cfg.Broker.CommissionPct, cfg.Broker.SlippagePct)
	risk, err := usecase.NewRiskManager(cfg.RiskLimits(), broker.FeeRate())
	if err != nil {
		return err
	}

	svc, err := usecase.NewAutomationService(usecase.AutomationConfig{
		RunID:         cfg.Automation.RunID,
		Symbols:       cfg.Watchlist,
		Lookback:      cfg.Automation.Lookback,
		InitialCash:   cfg.Portfolio.InitialCash,
		Annualization: cfg.Annualization(),
	}, store, strategy, profile, risk, broker, store, store, log)
	if err != nil {
		return err
	}

	loc, err := config.GetLocation()
	if err != nil {
		return fmt.Errorf("failed to load exchange timezone: %w", err)
	}

	once, _ := cmd.Flags().GetBool("once")
	if once {
		_, err := svc.RunCycle(context.Background(), time.Now())
		return err
	}

	// 4. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(cfg.Automation.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Paper-trading started",
		zap.String("run_id", cfg.Automation.RunID),
		zap.Strings("watchlist", cfg.Watchlist),
		zap.Duration("interval", interval),
		zap.Bool("market_hours_only", cfg.Automation.MarketHoursOnly))

	// First cycle immediately, then one per tick.
	for {
		now := time.Now()
		if cfg.Automation.MarketHoursOnly && !marketOpen(now, loc) {
			log.Debug("Market closed, skipping cycle", zap.Time("at", now))
		} else {
			if _, err := svc.RunCycle(context.Background(), now); err != nil {
				log.Error("Cycle failed", zap.Error(err))
			}
		}

		select {
		case <-ticker.C:
			continue
		case <-stop:
			log.Info("Shutting down...")
			return nil
		}
	}
}

// runImportCommand loads a CSV bar file into the store.
func runImportCommand(cfg *config.Config, path, symbol string) error {
	ctx := context.Background()

	bars, err := marketdata.ReadBarsFile(path, symbol)
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init sqlite: %w", err)
	}
	defer store.Close()

	if err := store.SaveBars(ctx, bars); err != nil {
		return fmt.Errorf("failed to save bars: %w", err)
	}

	fmt.Printf("Imported %d bars for %s (%s .. %s)\n",
		len(bars), symbol,
		bars[0].Time.Format("2006-01-02"), bars[len(bars)-1].Time.Format("2006-01-02"))
	return nil
}

// runReportCommand rebuilds a stored run's report from the persisted ledger.
func runReportCommand(cmd *cobra.Command, cfg *config.Config, runID string) error {
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to init sqlite: %w", err)
	}
	defer store.Close()

	report, err := usecase.LoadStoredReport(ctx, runID, store, cfg.Annualization())
	if err != nil {
		return err
	}

	if err := exportReport(cmd, report); err != nil {
		return err
	}
	if out, _ := cmd.Flags().GetString("out"); out == "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

func resolveStrategy(cmd *cobra.Command, cfg *config.Config) (usecase.Strategy, domain.Profile, error) {
	name := cfg.Strategy
	if v, _ := cmd.Flags().GetString("strategy"); v != "" {
		name = v
	}
	profileName := cfg.Profile
	if v, _ := cmd.Flags().GetString("profile"); v != "" {
		profileName = v
	}
	if name == "" {
		return nil, domain.Profile{}, fmt.Errorf("no strategy selected; set strategy in config or pass --strategy (one of %s)",
			strings.Join(usecase.StrategyNames(), ", "))
	}

	strategy, err := usecase.NewStrategy(name)
	if err != nil {
		return nil, domain.Profile{}, err
	}
	profile, err := cfg.StrategyProfile(name, profileName)
	if err != nil {
		return nil, domain.Profile{}, err
	}
	if err := usecase.ValidateProfile(strategy, profile); err != nil {
		return nil, domain.Profile{}, err
	}
	return strategy, profile, nil
}

func exportReport(cmd *cobra.Command, report *domain.RunReport) error {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := usecase.WriteReportJSON(report, out); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", out)
	}
	if out, _ := cmd.Flags().GetString("trades-csv"); out != "" {
		if err := usecase.WriteTradesCSV(report.Trades, out); err != nil {
			return err
		}
	}
	if out, _ := cmd.Flags().GetString("equity-csv"); out != "" {
		if err := usecase.WriteEquityCSV(report.EquityCurve, out); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(r *domain.RunReport) {
	fmt.Printf("Run %s: %s/%s\n", r.RunID, r.Strategy, r.Profile)
	fmt.Printf("  Initial cash:   %12.2f\n", r.InitialCash)
	fmt.Printf("  Final value:    %12.2f\n", r.FinalValue)
	fmt.Printf("  Total return:   %s\n", fmtPct(r.Performance.TotalReturn))
	fmt.Printf("  Max drawdown:   %s\n", fmtPct(r.Performance.MaxDrawdown))
	fmt.Printf("  Sharpe:         %s\n", fmtStat(r.Performance.Sharpe))
	fmt.Printf("  Trades:         %d (win rate %s)\n", r.Performance.TotalTrades, fmtPct(r.Performance.WinRate))
	fmt.Printf("  Rejected:       %d\n", len(r.RejectedSignals))
	if r.Performance.InsufficientSample {
		fmt.Println("  Note: no closed trades; risk statistics are undefined")
	}
}

func fmtStat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func fmtPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// marketOpen reports whether t falls inside regular trading hours,
// 9:30-16:00 Monday through Friday in the exchange timezone.
func marketOpen(t time.Time, loc *time.Location) bool {
	lt := t.In(loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	openAt := time.Date(lt.Year(), lt.Month(), lt.Day(), 9, 30, 0, 0, loc)
	closeAt := time.Date(lt.Year(), lt.Month(), lt.Day(), 16, 0, 0, 0, loc)
	return !lt.Before(openAt) && lt.Before(closeAt)
}
