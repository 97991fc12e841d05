// Package config provides configuration management for the paper-trading bot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/mholloway/rtx-paperbot/internal/ledger"
	"github.com/mholloway/rtx-paperbot/internal/marketdata"
)

const (
	// defaultCheckInterval is used when schedule.check_interval is unset or invalid
	defaultCheckInterval = 15 * time.Minute
	// defaultQuoteFailureAlert is the consecutive quote-failure count before escalation
	defaultQuoteFailureAlert = 5
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Symbol      string            `yaml:"symbol"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Commission  CommissionConfig  `yaml:"commission"`
	Slippage    SlippageConfig    `yaml:"slippage"`
	Filter      FilterConfig      `yaml:"filter"`
	Strategies  []StrategyConfig  `yaml:"strategies"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // live | mock (data source; trading is always paper)
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market-data API settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Sandbox bool   `yaml:"sandbox"`
	Timeout string `yaml:"timeout"` // Go duration string, e.g. "30s"
}

// ScheduleConfig defines the polling schedule and market hours.
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"`
	Timezone      string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart  string `yaml:"trading_start"` // "HH:MM"
	TradingEnd    string `yaml:"trading_end"`   // "HH:MM"
	DailyReport   string `yaml:"daily_report"`  // "HH:MM", empty disables the digest
}

// CommissionConfig defines the simulated commission schedule.
type CommissionConfig struct {
	PerContract float64 `yaml:"per_contract"`
	PerTrade    float64 `yaml:"per_trade"`
	Minimum     float64 `yaml:"minimum"`
}

// SlippageConfig defines the simulated market-impact model.
type SlippageConfig struct {
	ContractThreshold int     `yaml:"contract_threshold"`
	Pct               float64 `yaml:"pct"`
}

// FilterConfig defines chain filtering thresholds.
type FilterConfig struct {
	MinVolume       int64   `yaml:"min_volume"`
	MinOpenInterest int64   `yaml:"min_open_interest"`
	MaxSpreadPct    float64 `yaml:"max_spread_pct"`
	MinIV           float64 `yaml:"min_iv"`
	MaxIV           float64 `yaml:"max_iv"`
	MinDTE          int     `yaml:"min_dte"`
	MaxDTE          int     `yaml:"max_dte"`
}

// StrategyConfig defines one independently-capitalized trading profile.
type StrategyConfig struct {
	ID               string  `yaml:"id"`
	InitialBalance   float64 `yaml:"initial_balance"`
	MinConfidence    float64 `yaml:"min_confidence"`
	AllocationPct    float64 `yaml:"allocation_pct"`
	KellyFraction    float64 `yaml:"kelly_fraction"`
	MaxContracts     int     `yaml:"max_contracts"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	ProfitTargetPct  float64 `yaml:"profit_target_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TargetDTE        []int   `yaml:"target_dte"` // [min, max]
}

// TelegramConfig defines reporting bot settings. An empty token disables
// Telegram reporting without failing validation.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// DashboardConfig defines the read-only HTTP dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines where the per-strategy ledger databases live.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "live" && c.Environment.Mode != "mock" {
		return fmt.Errorf("environment.mode must be 'live' or 'mock'")
	}
	if c.Environment.Mode == "live" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required in live mode")
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if c.Commission.PerContract < 0 || c.Commission.PerTrade < 0 || c.Commission.Minimum < 0 {
		return fmt.Errorf("commission values must be >= 0")
	}
	if c.Slippage.Pct < 0 || c.Slippage.Pct >= 1 {
		return fmt.Errorf("slippage.pct must be in [0,1)")
	}
	if c.Slippage.ContractThreshold <= 0 {
		return fmt.Errorf("slippage.contract_threshold must be > 0")
	}

	if c.Filter.MaxSpreadPct <= 0 || c.Filter.MaxSpreadPct > 1 {
		return fmt.Errorf("filter.max_spread_pct must be in (0,1]")
	}
	if c.Filter.MinDTE < 0 || c.Filter.MaxDTE <= 0 || c.Filter.MinDTE > c.Filter.MaxDTE {
		return fmt.Errorf("filter dte window must satisfy 0 <= min_dte <= max_dte")
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	seen := make(map[string]bool, len(c.Strategies))
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if s.ID == "" {
			return fmt.Errorf("strategies[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate strategy id %q", s.ID)
		}
		seen[s.ID] = true
		if s.InitialBalance <= 0 {
			return fmt.Errorf("strategy %s: initial_balance must be > 0", s.ID)
		}
		if s.MinConfidence <= 0 || s.MinConfidence >= 1 {
			return fmt.Errorf("strategy %s: min_confidence must be in (0,1)", s.ID)
		}
		if s.AllocationPct <= 0 || s.AllocationPct > 1 {
			return fmt.Errorf("strategy %s: allocation_pct must be in (0,1]", s.ID)
		}
		if s.KellyFraction <= 0 || s.KellyFraction > 1 {
			return fmt.Errorf("strategy %s: kelly_fraction must be in (0,1]", s.ID)
		}
		if s.MaxContracts <= 0 {
			return fmt.Errorf("strategy %s: max_contracts must be > 0", s.ID)
		}
		if s.MaxOpenPositions <= 0 {
			return fmt.Errorf("strategy %s: max_open_positions must be > 0", s.ID)
		}
		if s.ProfitTargetPct <= 0 {
			return fmt.Errorf("strategy %s: profit_target_pct must be > 0", s.ID)
		}
		if s.StopLossPct <= 0 || s.StopLossPct >= 1 {
			return fmt.Errorf("strategy %s: stop_loss_pct must be in (0,1)", s.ID)
		}
		// DTE window must be [min,max] with positive ints and min <= max
		if len(s.TargetDTE) != 2 || s.TargetDTE[0] <= 0 || s.TargetDTE[1] <= 0 ||
			s.TargetDTE[0] > s.TargetDTE[1] {
			return fmt.Errorf("strategy %s: target_dte must be [min,max] with positive values and min <= max", s.ID)
		}
		if s.TargetDTE[0] < c.Filter.MinDTE || s.TargetDTE[1] > c.Filter.MaxDTE {
			return fmt.Errorf("strategy %s: target_dte [%d,%d] must be within filter window [%d,%d]",
				s.ID, s.TargetDTE[0], s.TargetDTE[1], c.Filter.MinDTE, c.Filter.MaxDTE)
		}
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid port when the dashboard is enabled")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}

	if c.Provider.Timeout != "" {
		if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
			return fmt.Errorf("provider.timeout invalid: %w", err)
		}
	}
	if c.Schedule.CheckInterval != "" {
		if _, err := time.ParseDuration(c.Schedule.CheckInterval); err != nil {
			return fmt.Errorf("schedule.check_interval invalid: %w", err)
		}
	}
	loc := c.location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}
	if c.Schedule.DailyReport != "" {
		if _, err := time.ParseInLocation("15:04", c.Schedule.DailyReport, loc); err != nil {
			return fmt.Errorf("schedule.daily_report invalid: %w", err)
		}
	}

	return nil
}

// GetProviderTimeout returns the configured HTTP timeout, zero when unset.
func (c *Config) GetProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// GetCheckInterval returns the configured polling interval.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CheckInterval)
	if err != nil || d <= 0 {
		return defaultCheckInterval
	}
	return d
}

// IsWithinTradingHours checks if the given time falls within configured
// trading hours (weekdays only, inclusive start, exclusive end).
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.location()
	today := now.In(loc)

	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 45, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 15, 45, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	return !today.Before(start) && today.Before(end)
}

// LedgerConfig builds the per-strategy ledger configuration, including the
// database path under the storage directory.
func (c *Config) LedgerConfig(s *StrategyConfig) ledger.Config {
	return ledger.Config{
		Strategy:       s.ID,
		Path:           filepath.Join(c.Storage.Dir, fmt.Sprintf("paper_%s.db", s.ID)),
		InitialBalance: s.InitialBalance,
		Commission: ledger.CommissionSchedule{
			PerContract: c.Commission.PerContract,
			PerTrade:    c.Commission.PerTrade,
			Minimum:     c.Commission.Minimum,
		},
		Slippage: ledger.SlippageModel{
			ContractThreshold: c.Slippage.ContractThreshold,
			Pct:               c.Slippage.Pct,
		},
		QuoteFailureAlert: defaultQuoteFailureAlert,
	}
}

// FilterCriteria converts the filter section into engine criteria.
func (c *Config) FilterCriteria() marketdata.FilterCriteria {
	return marketdata.FilterCriteria{
		MinVolume:       c.Filter.MinVolume,
		MinOpenInterest: c.Filter.MinOpenInterest,
		MaxSpreadPct:    c.Filter.MaxSpreadPct,
		MinIV:           c.Filter.MinIV,
		MaxIV:           c.Filter.MaxIV,
		MinDTE:          c.Filter.MinDTE,
		MaxDTE:          c.Filter.MaxDTE,
	}
}

// UseMockProvider returns true when the bot should run against scripted data.
func (c *Config) UseMockProvider() bool {
	return c.Environment.Mode == "mock"
}

func (c *Config) location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	return loc
}
