package config

import "fmt"

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	if c.Execution.Mode != "paper" && c.Execution.Mode != "live" {
		return fmt.Errorf("execution.mode must be 'paper' or 'live', got %q", c.Execution.Mode)
	}
	if c.Sizing.Mode != "fixed" && c.Sizing.Mode != "kelly" {
		return fmt.Errorf("sizing.mode must be 'fixed' or 'kelly', got %q", c.Sizing.Mode)
	}

	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed.symbol must not be empty")
	}
	if c.Market.Asset == "" {
		return fmt.Errorf("market.asset must not be empty")
	}
	if c.Market.RefreshIntervalSecs <= 0 {
		return fmt.Errorf("market.refresh_interval_secs must be > 0, got %s", c.Market.RefreshIntervalSecs)
	}

	if c.Model.VolatilityWindowMinutes <= 0 {
		return fmt.Errorf("model.volatility_window_minutes must be > 0, got %d", c.Model.VolatilityWindowMinutes)
	}
	if c.Model.MinTimeToExpirySecs < 0 {
		return fmt.Errorf("model.min_time_to_expiry_secs must be >= 0, got %d", c.Model.MinTimeToExpirySecs)
	}

	if c.Signal.MinEdgeThreshold < 0 || c.Signal.MinEdgeThreshold >= c.Signal.MaxEdgeThreshold {
		return fmt.Errorf("signal.min_edge_threshold must be >= 0 and less than max_edge_threshold, got %f/%f",
			c.Signal.MinEdgeThreshold, c.Signal.MaxEdgeThreshold)
	}
	if c.Signal.MaxEdgeThreshold > 1 {
		return fmt.Errorf("signal.max_edge_threshold must be <= 1.0, got %f", c.Signal.MaxEdgeThreshold)
	}

	if c.Momentum.WindowSeconds <= 0 {
		return fmt.Errorf("momentum.window_seconds must be > 0, got %d", c.Momentum.WindowSeconds)
	}
	if c.Momentum.MinMovePct <= 0 || c.Momentum.MinMovePct >= c.Momentum.MaxMovePct {
		return fmt.Errorf("momentum.min_move_pct must be > 0 and less than max_move_pct, got %f/%f",
			c.Momentum.MinMovePct, c.Momentum.MaxMovePct)
	}
	if c.Momentum.ConfirmationSeconds < 0 {
		return fmt.Errorf("momentum.confirmation_seconds must be >= 0, got %d", c.Momentum.ConfirmationSeconds)
	}

	if c.Lag.MinLagCents <= 0 {
		return fmt.Errorf("lag.min_lag_cents must be > 0, got %f", c.Lag.MinLagCents)
	}
	if c.Lag.MaxYesForUp <= 0 || c.Lag.MaxYesForUp >= 1 {
		return fmt.Errorf("lag.max_yes_for_up must be within (0,1), got %f", c.Lag.MaxYesForUp)
	}
	if c.Lag.MinYesForDown <= 0 || c.Lag.MinYesForDown >= 1 {
		return fmt.Errorf("lag.min_yes_for_down must be within (0,1), got %f", c.Lag.MinYesForDown)
	}

	if c.Spread.MinProfitPct <= 0 {
		return fmt.Errorf("spread.min_profit_pct must be > 0, got %f", c.Spread.MinProfitPct)
	}
	if c.Spread.FeeRatePerSide < 0 {
		return fmt.Errorf("spread.fee_rate_per_side must be >= 0, got %f", c.Spread.FeeRatePerSide)
	}
	if c.Spread.MaxBookAgeMs <= 0 {
		return fmt.Errorf("spread.max_book_age_ms must be > 0, got %d", c.Spread.MaxBookAgeMs)
	}
	if c.Spread.MaxPositions <= 0 {
		return fmt.Errorf("spread.max_positions must be > 0, got %d", c.Spread.MaxPositions)
	}

	if c.Sizing.FixedPct <= 0 || c.Sizing.FixedPct > c.Sizing.MaxPct {
		return fmt.Errorf("sizing.fixed_pct must be > 0 and at most max_pct, got %f/%f",
			c.Sizing.FixedPct, c.Sizing.MaxPct)
	}
	if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
		return fmt.Errorf("sizing.kelly_fraction must be within (0,1], got %f", c.Sizing.KellyFraction)
	}

	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be > 0, got %d", c.Risk.MaxConcurrentPositions)
	}
	if c.Risk.InitialBankroll <= 0 {
		return fmt.Errorf("risk.initial_bankroll must be > 0, got %f", c.Risk.InitialBankroll)
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be within (0,1], got %f", c.Risk.MaxPositionPct)
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be within (0,1], got %f", c.Risk.MaxDailyLossPct)
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 1 {
		return fmt.Errorf("risk.max_drawdown_pct must be within (0,1], got %f", c.Risk.MaxDrawdownPct)
	}

	if c.Execution.SlippageEstimate < 0 {
		return fmt.Errorf("execution.slippage_estimate must be >= 0, got %f", c.Execution.SlippageEstimate)
	}
	if c.Execution.FeeRatePerSide < 0 {
		return fmt.Errorf("execution.fee_rate_per_side must be >= 0, got %f", c.Execution.FeeRatePerSide)
	}

	if c.Data.CaptureEnabled {
		if c.Data.OutputDir == "" {
			return fmt.Errorf("data.output_dir must not be empty when capture_enabled is true")
		}
		if c.Data.RotationIntervalSec <= 0 {
			return fmt.Errorf("data.rotation_interval must be > 0, got %s", c.Data.RotationIntervalSec)
		}
		if c.Data.BufferSize <= 0 {
			return fmt.Errorf("data.buffer_size must be > 0, got %d", c.Data.BufferSize)
		}
	}

	if c.Telemetry.MetricsPort <= 0 || c.Telemetry.MetricsPort > 65535 {
		return fmt.Errorf("telemetry.metrics_port must be a valid port, got %d", c.Telemetry.MetricsPort)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}
