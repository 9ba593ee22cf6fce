// Package config implements ambient configuration loading: a root
// Config struct with nested per-component sections, YAML decoding
// over sensible defaults, environment overrides and validation, via
// a Default()/LoadFile()/ApplyEnv()/Validate() pipeline.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document: one nested section per
// engine subsystem.
type Config struct {
	DryRun   bool   `yaml:"dry_run"`
	LogLevel string `yaml:"log_level"`

	Feed      FeedConfig      `yaml:"feed"`
	Market    MarketConfig    `yaml:"market"`
	Model     ModelConfig     `yaml:"model"`
	Signal    SignalConfig    `yaml:"signal"`
	Momentum  MomentumConfig  `yaml:"momentum"`
	Lag       LagConfig       `yaml:"lag"`
	Spread    SpreadConfig    `yaml:"spread"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Data      DataConfig      `yaml:"data"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// FeedConfig names the venue and symbol a spot feed subscribes to.
type FeedConfig struct {
	Exchange string `yaml:"exchange"`
	Symbol   string `yaml:"symbol"`
}

// MarketConfig controls the market directory's catalog polling.
type MarketConfig struct {
	Asset               string        `yaml:"asset"`
	Interval            string        `yaml:"interval"`
	RefreshIntervalSecs time.Duration `yaml:"refresh_interval_secs"`
}

// ModelConfig controls the volatility/fair-value model window.
type ModelConfig struct {
	VolatilityWindowMinutes int `yaml:"volatility_window_minutes"`
	MinTimeToExpirySecs     int `yaml:"min_time_to_expiry_secs"`
}

// SignalConfig bounds which edges are tradeable.
type SignalConfig struct {
	MinEdgeThreshold float64 `yaml:"min_edge_threshold"`
	MaxEdgeThreshold float64 `yaml:"max_edge_threshold"`
}

// MomentumConfig parameterizes the momentum state machine.
type MomentumConfig struct {
	WindowSeconds       int     `yaml:"window_seconds"`
	MinMovePct          float64 `yaml:"min_move_pct"`
	MaxMovePct          float64 `yaml:"max_move_pct"`
	ConfirmationSeconds int     `yaml:"confirmation_seconds"`
}

// LagConfig parameterizes the lag detector.
type LagConfig struct {
	MinLagCents           float64 `yaml:"min_lag_cents"`
	MaxYesForUp           float64 `yaml:"max_yes_for_up"`
	MinYesForDown         float64 `yaml:"min_yes_for_down"`
	MinSecondsAfterOpen   int     `yaml:"min_seconds_after_open"`
	MaxSecondsBeforeClose int     `yaml:"max_seconds_before_close"`
}

// SpreadConfig parameterizes the spread-capture detector.
type SpreadConfig struct {
	MinProfitPct   float64 `yaml:"min_profit_pct"`
	FeeRatePerSide float64 `yaml:"fee_rate_per_side"`
	MaxBookAgeMs   int64   `yaml:"max_book_age_ms"`
	BaseSize       float64 `yaml:"base_size"`
	MaxPositions   int     `yaml:"max_positions"`
}

// SizingConfig selects and parameterizes the position sizer.
type SizingConfig struct {
	Mode          string  `yaml:"mode"` // "fixed" | "kelly"
	FixedPct      float64 `yaml:"fixed_pct"`
	MaxPct        float64 `yaml:"max_pct"`
	KellyFraction float64 `yaml:"kelly_fraction"`
}

// RiskConfig parameterizes pre-trade gating and drawdown halts.
type RiskConfig struct {
	KellyFraction          float64 `yaml:"kelly_fraction"`
	MaxPositionPct         float64 `yaml:"max_position_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	InitialBankroll        float64 `yaml:"initial_bankroll"`
	MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct         float64 `yaml:"max_drawdown_pct"`
	MaxExposurePct         float64 `yaml:"max_exposure_pct"`
}

// ExecutionConfig selects paper vs. live execution.
type ExecutionConfig struct {
	Mode             string  `yaml:"mode"` // "paper" | "live"
	SlippageEstimate float64 `yaml:"slippage_estimate"`
	FeeRatePerSide   float64 `yaml:"fee_rate_per_side"`
}

// DataConfig controls the tick recorder.
type DataConfig struct {
	CaptureEnabled      bool          `yaml:"capture_enabled"`
	OutputDir           string        `yaml:"output_dir"`
	RotationIntervalSec time.Duration `yaml:"rotation_interval"`
	BufferSize          int           `yaml:"buffer_size"`
	FlushIntervalSecs   time.Duration `yaml:"flush_interval_secs"`
}

// TelemetryConfig controls metrics/logging exporter wiring.
type TelemetryConfig struct {
	MetricsPort  int    `yaml:"metrics_port"`
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// APIConfig controls the status/dashboard HTTP surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NotifyConfig controls the optional Telegram alert channel for risk
// events. BotToken and ChatID are only ever set via environment
// variables (TRADEENGINE_TELEGRAM_BOT_TOKEN/_CHAT_ID), never YAML, so
// they never land in a checked-in config file.
type NotifyConfig struct {
	BotToken string `yaml:"-"`
	ChatID   string `yaml:"-"`
}

// Default returns the recognized configuration defaults.
func Default() Config {
	return Config{
		DryRun:   true,
		LogLevel: "info",
		Feed: FeedConfig{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
		},
		Market: MarketConfig{
			Asset:               "BTC",
			Interval:            "15m",
			RefreshIntervalSecs: 30 * time.Second,
		},
		Model: ModelConfig{
			VolatilityWindowMinutes: 30,
			MinTimeToExpirySecs:     60,
		},
		Signal: SignalConfig{
			MinEdgeThreshold: 0.03,
			MaxEdgeThreshold: 0.40,
		},
		Momentum: MomentumConfig{
			WindowSeconds:       120,
			MinMovePct:          0.007,
			MaxMovePct:          0.05,
			ConfirmationSeconds: 5,
		},
		Lag: LagConfig{
			MinLagCents:           0.10,
			MaxYesForUp:           0.60,
			MinYesForDown:         0.40,
			MinSecondsAfterOpen:   60,
			MaxSecondsBeforeClose: 120,
		},
		Spread: SpreadConfig{
			MinProfitPct:   0.02,
			FeeRatePerSide: 0.005,
			MaxBookAgeMs:   2000,
			BaseSize:       5,
			MaxPositions:   50,
		},
		Sizing: SizingConfig{
			Mode:          "kelly",
			FixedPct:      0.02,
			MaxPct:        0.05,
			KellyFraction: 0.25,
		},
		Risk: RiskConfig{
			KellyFraction:          0.25,
			MaxPositionPct:         0.01,
			MaxConcurrentPositions: 3,
			InitialBankroll:        1000,
			MaxDailyLossPct:        0.05,
			MaxDrawdownPct:         0.10,
			MaxExposurePct:         0.10,
		},
		Execution: ExecutionConfig{
			Mode:             "paper",
			SlippageEstimate: 0,
			FeeRatePerSide:   0.005,
		},
		Data: DataConfig{
			CaptureEnabled:      true,
			OutputDir:           "./data",
			RotationIntervalSec: time.Hour,
			BufferSize:          100,
			FlushIntervalSecs:   10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// LoadFile reads a YAML document at path and unmarshals it over the
// defaults, so unset fields keep their default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variable overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TRADEENGINE_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_EXECUTION_MODE")); v != "" {
		c.Execution.Mode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_INITIAL_BANKROLL")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Risk.InitialBankroll = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_DATA_DIR")); v != "" {
		c.Data.OutputDir = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_TELEGRAM_BOT_TOKEN")); v != "" {
		c.Notify.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADEENGINE_TELEGRAM_CHAT_ID")); v != "" {
		c.Notify.ChatID = v
	}
}
