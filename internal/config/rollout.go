package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset to the config.
// Supported phases:
//   - paper:      paper execution, real paper fills (dry_run=false)
//   - shadow:     live mode, dry-run only (signals logged, no orders placed)
//   - live-small: live mode with conservative position and loss caps
//   - live:       live mode using configured values
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.Execution.Mode = "paper"
		cfg.DryRun = false
	case "shadow", "live-dryrun", "live-dry-run":
		cfg.Execution.Mode = "live"
		cfg.DryRun = true
	case "live-small", "small":
		cfg.Execution.Mode = "live"
		cfg.DryRun = false

		clampMaxInt(&cfg.Risk.MaxConcurrentPositions, 1)
		clampMaxFloat(&cfg.Risk.MaxPositionPct, 0.005)
		clampMaxFloat(&cfg.Risk.MaxDailyLossPct, 0.01)
		clampMaxFloat(&cfg.Spread.BaseSize, 1)
		if cfg.Risk.InitialBankroll <= 0 {
			cfg.Risk.InitialBankroll = 1000
		}
	case "live":
		cfg.Execution.Mode = "live"
		cfg.DryRun = false
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live-small|live)", phase)
	}

	return nil
}

func clampMaxFloat(v *float64, max float64) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}

func clampMaxInt(v *int, max int) {
	if max <= 0 {
		return
	}
	if *v <= 0 || *v > max {
		*v = max
	}
}
