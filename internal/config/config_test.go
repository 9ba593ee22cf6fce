package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Risk.MaxConcurrentPositions <= 0 {
		t.Fatal("expected positive max_concurrent_positions")
	}
	if cfg.Market.RefreshIntervalSecs <= 0 {
		t.Fatal("expected positive market refresh interval")
	}
	if !cfg.DryRun {
		t.Fatal("expected dry run true by default")
	}
	if cfg.Risk.MaxDailyLossPct <= 0 {
		t.Fatal("expected positive max_daily_loss_pct by default")
	}
	if cfg.Risk.InitialBankroll <= 0 {
		t.Fatal("expected positive initial_bankroll by default")
	}
	if cfg.Execution.Mode != "paper" {
		t.Fatalf("expected execution.mode=paper by default, got %q", cfg.Execution.Mode)
	}
	if cfg.Data.RotationIntervalSec != time.Hour {
		t.Fatalf("expected data.rotation_interval=1h by default, got %v", cfg.Data.RotationIntervalSec)
	}
	if cfg.Sizing.Mode != "kelly" {
		t.Fatalf("expected sizing.mode=kelly by default, got %q", cfg.Sizing.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
market:
  asset: ETH
  refresh_interval_secs: 15s
momentum:
  min_move_pct: 0.01
risk:
  max_daily_loss_pct: 0.03
  initial_bankroll: 1500
  max_concurrent_positions: 4
execution:
  mode: live
  slippage_estimate: 0.01
data:
  output_dir: /tmp/ticks
  capture_enabled: false
`
	f, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte(yaml)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Market.Asset != "ETH" {
		t.Fatalf("expected asset ETH, got %q", cfg.Market.Asset)
	}
	if cfg.Market.RefreshIntervalSecs != 15*time.Second {
		t.Fatalf("expected refresh interval 15s, got %v", cfg.Market.RefreshIntervalSecs)
	}
	if cfg.Momentum.MinMovePct != 0.01 {
		t.Fatalf("expected min_move_pct 0.01, got %f", cfg.Momentum.MinMovePct)
	}
	if cfg.Risk.MaxDailyLossPct != 0.03 {
		t.Fatalf("expected max daily loss pct 0.03, got %f", cfg.Risk.MaxDailyLossPct)
	}
	if cfg.Risk.InitialBankroll != 1500 {
		t.Fatalf("expected initial bankroll 1500, got %f", cfg.Risk.InitialBankroll)
	}
	if cfg.Risk.MaxConcurrentPositions != 4 {
		t.Fatalf("expected max concurrent positions 4, got %d", cfg.Risk.MaxConcurrentPositions)
	}
	if cfg.Execution.Mode != "live" {
		t.Fatalf("expected execution mode live, got %q", cfg.Execution.Mode)
	}
	if cfg.Execution.SlippageEstimate != 0.01 {
		t.Fatalf("expected slippage estimate 0.01, got %f", cfg.Execution.SlippageEstimate)
	}
	if cfg.Data.OutputDir != "/tmp/ticks" {
		t.Fatalf("expected output dir /tmp/ticks, got %q", cfg.Data.OutputDir)
	}
	if cfg.Data.CaptureEnabled {
		t.Fatal("expected capture_enabled=false from yaml")
	}
	// Unset sections keep their defaults.
	if cfg.Lag.MinLagCents <= 0 {
		t.Fatal("expected lag defaults to survive a partial yaml override")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRADEENGINE_DRY_RUN", "false")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.DryRun {
		t.Fatal("expected dry run false from env")
	}
}

func TestLoadFileInvalidPath(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	f, err := os.CreateTemp("", "bad-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte("{{invalid yaml")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = LoadFile(f.Name())
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestApplyEnvExecutionMode(t *testing.T) {
	t.Setenv("TRADEENGINE_EXECUTION_MODE", "LIVE")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Execution.Mode != "live" {
		t.Fatalf("expected execution mode from env to be live, got %q", cfg.Execution.Mode)
	}
}

func TestApplyEnvInitialBankroll(t *testing.T) {
	t.Setenv("TRADEENGINE_INITIAL_BANKROLL", "5000")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Risk.InitialBankroll != 5000 {
		t.Fatalf("expected initial bankroll 5000 from env, got %f", cfg.Risk.InitialBankroll)
	}
}

func TestApplyEnvDataDir(t *testing.T) {
	t.Setenv("TRADEENGINE_DATA_DIR", "/var/tmp/ticks")
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Data.OutputDir != "/var/tmp/ticks" {
		t.Fatalf("expected data dir override, got %q", cfg.Data.OutputDir)
	}
}

func TestApplyEnvDryRunTrue(t *testing.T) {
	t.Setenv("TRADEENGINE_DRY_RUN", "true")
	cfg := Default()
	cfg.DryRun = false
	cfg.ApplyEnv()
	if !cfg.DryRun {
		t.Fatal("expected DryRun true from env 'true'")
	}
}
