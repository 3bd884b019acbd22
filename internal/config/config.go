package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode   string `yaml:"mode"`
	Symbol string `yaml:"symbol"`

	Instrument struct {
		PipSize      float64 `yaml:"pip_size"`
		PointSize    float64 `yaml:"point_size"`
		TickValue    float64 `yaml:"tick_value"`
		ContractSize float64 `yaml:"contract_size"`
	} `yaml:"instrument"`

	Session struct {
		RangeStartHour   int `yaml:"range_start_hour"`
		RangeEndHour     int `yaml:"range_end_hour"`
		ExecutionEndHour int `yaml:"execution_end_hour"`
		RetestMinutes    int `yaml:"retest_minutes"`
		CooldownMinutes  int `yaml:"cooldown_minutes"`
	} `yaml:"session"`

	Sweep struct {
		MinFloorPips   float64 `yaml:"min_floor_pips"`
		ThresholdRatio float64 `yaml:"threshold_ratio"`
	} `yaml:"sweep"`

	Risk struct {
		TightPct  float64 `yaml:"tight_pct"`
		NormalPct float64 `yaml:"normal_pct"`
		MinVolume float64 `yaml:"min_volume"`
		MaxVolume float64 `yaml:"max_volume"`
	} `yaml:"risk"`

	Limits struct {
		MaxDailyTrades  int     `yaml:"max_daily_trades"`
		MaxDailyLosses  int     `yaml:"max_daily_losses"`
		DailyLossAmount float64 `yaml:"daily_loss_amount"`
	} `yaml:"limits"`

	Confluence struct {
		MaxSpreadPips float64 `yaml:"max_spread_pips"`
	} `yaml:"confluence"`

	News struct {
		Enabled        bool   `yaml:"enabled"`
		CalendarURL    string `yaml:"calendar_url"`
		BufferMinutes  int    `yaml:"buffer_minutes"`
		RefreshMinutes int    `yaml:"refresh_minutes"`
	} `yaml:"news"`

	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Bridge struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"bridge"`

	Advisor struct {
		Provider        string  `yaml:"provider"`
		Model           string  `yaml:"model"`
		MaxTokens       int     `yaml:"max_tokens"`
		Temperature     float32 `yaml:"temperature"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		CooldownSeconds int     `yaml:"cooldown_seconds"`
	} `yaml:"advisor"`

	Ops struct {
		Listen string `yaml:"listen"`
	} `yaml:"ops"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if c.Instrument.PipSize <= 0 {
		return fmt.Errorf("instrument.pip_size must be positive, got %v", c.Instrument.PipSize)
	}
	if c.Risk.TightPct <= 0 || c.Risk.TightPct > 100 {
		return fmt.Errorf("risk.tight_pct must be between 0-100, got %.2f", c.Risk.TightPct)
	}
	if c.Risk.NormalPct <= 0 || c.Risk.NormalPct > 100 {
		return fmt.Errorf("risk.normal_pct must be between 0-100, got %.2f", c.Risk.NormalPct)
	}
	if c.Session.RangeEndHour <= c.Session.RangeStartHour {
		return fmt.Errorf("session.range_end_hour must be after range_start_hour")
	}
	if c.Store.Driver != "memory" && c.Store.Driver != "postgres" {
		return fmt.Errorf("store.driver must be 'memory' or 'postgres', got '%s'", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" && os.Getenv("DATABASE_URL") == "" {
		return fmt.Errorf("store.driver 'postgres' requires store.dsn or DATABASE_URL")
	}
	if c.Mode == "LIVE" && c.Bridge.BaseURL == "" {
		return fmt.Errorf("mode 'LIVE' requires bridge.base_url")
	}
	return nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// Default returns a configuration preloaded with the strategy's standard
// parameters for the metal instrument, used when no file is given.
func Default() *Config {
	c := &Config{Mode: "DRY_RUN", Symbol: "XAUUSD"}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "XAUUSD"
	}
	if c.Instrument.PipSize == 0 {
		c.Instrument.PipSize = 0.1
	}
	if c.Instrument.PointSize == 0 {
		c.Instrument.PointSize = 0.1
	}
	if c.Instrument.TickValue == 0 {
		c.Instrument.TickValue = 1.0
	}
	if c.Instrument.ContractSize == 0 {
		c.Instrument.ContractSize = 100.0
	}
	if c.Session.RangeEndHour == 0 {
		c.Session.RangeEndHour = 6
	}
	if c.Session.ExecutionEndHour == 0 {
		c.Session.ExecutionEndHour = 8
	}
	if c.Session.RetestMinutes == 0 {
		c.Session.RetestMinutes = 15
	}
	if c.Session.CooldownMinutes == 0 {
		c.Session.CooldownMinutes = 30
	}
	if c.Sweep.MinFloorPips == 0 {
		c.Sweep.MinFloorPips = 10
	}
	if c.Sweep.ThresholdRatio == 0 {
		c.Sweep.ThresholdRatio = 0.09
	}
	if c.Risk.TightPct == 0 {
		c.Risk.TightPct = 0.5
	}
	if c.Risk.NormalPct == 0 {
		c.Risk.NormalPct = 1.0
	}
	if c.Risk.MinVolume == 0 {
		c.Risk.MinVolume = 0.01
	}
	if c.Risk.MaxVolume == 0 {
		c.Risk.MaxVolume = 0.5
	}
	if c.Limits.MaxDailyTrades == 0 {
		c.Limits.MaxDailyTrades = 3
	}
	if c.Limits.MaxDailyLosses == 0 {
		c.Limits.MaxDailyLosses = 2
	}
	if c.Limits.DailyLossAmount == 0 {
		c.Limits.DailyLossAmount = 100.0
	}
	if c.Confluence.MaxSpreadPips == 0 {
		c.Confluence.MaxSpreadPips = 2.0
	}
	if c.News.BufferMinutes == 0 {
		c.News.BufferMinutes = 30
	}
	if c.News.RefreshMinutes == 0 {
		c.News.RefreshMinutes = 60
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Bridge.TimeoutSeconds == 0 {
		c.Bridge.TimeoutSeconds = 10
	}
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "NONE"
	}
	if c.Advisor.MaxTokens == 0 {
		c.Advisor.MaxTokens = 400
	}
	if c.Advisor.TimeoutSeconds == 0 {
		c.Advisor.TimeoutSeconds = 8
	}
	if c.Advisor.CooldownSeconds == 0 {
		c.Advisor.CooldownSeconds = 60
	}
	if c.Ops.Listen == "" {
		c.Ops.Listen = ":8090"
	}
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
}
