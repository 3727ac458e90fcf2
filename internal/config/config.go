// Package config loads and validates the run configuration. A config is read
// once at startup and treated as immutable; changing limits or profiles means
// starting a new run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yishaiam518/papertrader/internal/domain"
)

type Config struct {
	Logging    LoggingConfig                       `yaml:"logging"`
	Database   DatabaseConfig                      `yaml:"database"`
	Portfolio  PortfolioConfig                     `yaml:"portfolio"`
	Broker     BrokerConfig                        `yaml:"broker"`
	Risk       RiskConfig                          `yaml:"risk"`
	Watchlist  []string                            `yaml:"watchlist"`
	Strategy   string                              `yaml:"strategy"`
	Profile    string                              `yaml:"profile"`
	Automation AutomationConfig                    `yaml:"automation"`
	Strategies map[string]map[string]ProfileConfig `yaml:"strategies"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PortfolioConfig struct {
	InitialCash    float64 `yaml:"initial_cash"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	PeriodsPerYear int     `yaml:"periods_per_year"`
	TargetReturn   float64 `yaml:"target_return"`
}

type BrokerConfig struct {
	CommissionPct float64 `yaml:"commission_pct"`
	SlippagePct   float64 `yaml:"slippage_pct"`
}

type RiskConfig struct {
	MaxPositionSizePct  float64 `yaml:"max_position_size_pct"`
	TransactionLimitPct float64 `yaml:"transaction_limit_pct"`
	MaxPositions        int     `yaml:"max_positions"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	SafeCashFloor       float64 `yaml:"safe_cash_floor"`
	StopMode            string  `yaml:"stop_mode"`
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	ATRColumn           string  `yaml:"atr_column"`
	MaxHoldDays         int     `yaml:"max_hold_days"`
}

type AutomationConfig struct {
	RunID           string `yaml:"run_id"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	MarketHoursOnly bool   `yaml:"market_hours_only"`
	Lookback        int    `yaml:"lookback"`
}

type ProfileConfig struct {
	EntryWeights   map[string]float64 `yaml:"entry_weights"`
	EntryThreshold float64            `yaml:"entry_threshold"`
	RSIRange       []float64          `yaml:"rsi_range"`
	StopLossPct    float64            `yaml:"stop_loss_pct"`
	TakeProfitPct  float64            `yaml:"take_profit_pct"`
	MaxHoldDays    int                `yaml:"max_hold_days"`
}

// Load reads the yaml config at path, applies environment overrides and
// defaults, and validates the result. A .env file in the working directory
// is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := getEnv("PAPERTRADER_DB_PATH", ""); v != "" {
		c.Database.Path = v
	}
	if v := getEnv("PAPERTRADER_LOG_LEVEL", ""); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "papertrader.db"
	}
	if c.Portfolio.PeriodsPerYear == 0 {
		c.Portfolio.PeriodsPerYear = 252
	}
	if c.Automation.IntervalMinutes == 0 {
		c.Automation.IntervalMinutes = 5
	}
	if c.Automation.Lookback == 0 {
		c.Automation.Lookback = 60
	}
	for strategy, profiles := range c.Strategies {
		for name, p := range profiles {
			if len(p.RSIRange) == 0 {
				p.RSIRange = []float64{30, 70}
				c.Strategies[strategy][name] = p
			}
		}
	}
}

// Validate checks shape only. Strategy and condition names are checked at
// wiring time against the strategy registry.
func (c *Config) Validate() error {
	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be positive, got %v", c.Portfolio.InitialCash)
	}
	if c.Portfolio.PeriodsPerYear <= 0 {
		return fmt.Errorf("portfolio.periods_per_year must be positive, got %d", c.Portfolio.PeriodsPerYear)
	}
	if c.Broker.CommissionPct < 0 || c.Broker.SlippagePct < 0 {
		return fmt.Errorf("broker percentages must not be negative")
	}
	if err := c.RiskLimits().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	for strategy, profiles := range c.Strategies {
		if len(profiles) == 0 {
			return fmt.Errorf("strategies.%s has no profiles", strategy)
		}
		for name, p := range profiles {
			if err := p.validate(); err != nil {
				return fmt.Errorf("strategies.%s.%s: %w", strategy, name, err)
			}
		}
	}
	return nil
}

func (p ProfileConfig) validate() error {
	if len(p.EntryWeights) == 0 {
		return fmt.Errorf("entry_weights must not be empty")
	}
	total := 0.0
	for cond, w := range p.EntryWeights {
		if w < 0 {
			return fmt.Errorf("entry_weights.%s must not be negative, got %v", cond, w)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("entry_weights must not sum to zero")
	}
	if p.EntryThreshold <= 0 || p.EntryThreshold > 1 {
		return fmt.Errorf("entry_threshold must be in (0,1], got %v", p.EntryThreshold)
	}
	if len(p.RSIRange) != 2 {
		return fmt.Errorf("rsi_range must hold exactly two bounds, got %d", len(p.RSIRange))
	}
	if p.RSIRange[0] < 0 || p.RSIRange[1] > 100 || p.RSIRange[0] >= p.RSIRange[1] {
		return fmt.Errorf("rsi_range must be ascending within [0,100], got %v", p.RSIRange)
	}
	if p.StopLossPct < 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in [0,1), got %v", p.StopLossPct)
	}
	if p.TakeProfitPct < 0 {
		return fmt.Errorf("take_profit_pct must not be negative, got %v", p.TakeProfitPct)
	}
	if p.MaxHoldDays < 0 {
		return fmt.Errorf("max_hold_days must not be negative, got %d", p.MaxHoldDays)
	}
	return nil
}

// RiskLimits converts the risk section into domain limits.
func (c *Config) RiskLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionPct: c.Risk.MaxPositionSizePct,
		TransactionPct: c.Risk.TransactionLimitPct,
		MaxPositions:   c.Risk.MaxPositions,
		StopLossPct:    c.Risk.StopLossPct,
		TakeProfitPct:  c.Risk.TakeProfitPct,
		SafeCashFloor:  c.Risk.SafeCashFloor,
		StopMode:       domain.StopMode(c.Risk.StopMode),
		ATRMultiplier:  c.Risk.ATRMultiplier,
		ATRColumn:      c.Risk.ATRColumn,
		MaxHoldDays:    c.Risk.MaxHoldDays,
	}
}

// StrategyProfile resolves the named profile of the named strategy.
func (c *Config) StrategyProfile(strategy, profile string) (domain.Profile, error) {
	profiles, ok := c.Strategies[strategy]
	if !ok {
		return domain.Profile{}, fmt.Errorf("no profiles configured for strategy %q", strategy)
	}
	p, ok := profiles[profile]
	if !ok {
		return domain.Profile{}, fmt.Errorf("strategy %q has no profile %q", strategy, profile)
	}

	weights := make(map[string]float64, len(p.EntryWeights))
	for k, v := range p.EntryWeights {
		weights[k] = v
	}
	return domain.Profile{
		Name:           profile,
		EntryWeights:   weights,
		EntryThreshold: p.EntryThreshold,
		RSIRange:       [2]float64{p.RSIRange[0], p.RSIRange[1]},
		StopLossPct:    p.StopLossPct,
		TakeProfitPct:  p.TakeProfitPct,
		MaxHoldDays:    p.MaxHoldDays,
	}, nil
}

// Annualization builds the performance constants for this run.
func (c *Config) Annualization() domain.Annualization {
	return domain.Annualization{
		PeriodsPerYear: float64(c.Portfolio.PeriodsPerYear),
		RiskFreeRate:   c.Portfolio.RiskFreeRate,
		TargetReturn:   c.Portfolio.TargetReturn,
	}
}

// GetLocation returns the exchange timezone for market-hours gating.
func GetLocation() (*time.Location, error) {
	return time.LoadLocation("America/New_York")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
