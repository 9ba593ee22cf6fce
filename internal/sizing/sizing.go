// Package sizing implements position sizing policies: a shared
// (signal, bankroll) -> size contract with a fixed-fraction policy and
// a fractional-Kelly policy.
package sizing

import (
	"github.com/shopspring/decimal"
)

// Signal is the minimal edge description a sizing policy consumes. It
// is deliberately decoupled from the lag/spread packages so either can
// feed a sizer without an import cycle.
type Signal struct {
	FairValue   decimal.Decimal
	MarketPrice decimal.Decimal
	Confidence  decimal.Decimal
}

// Policy maps a signal and a bankroll to a dollar position size.
type Policy interface {
	Size(sig Signal, bankroll decimal.Decimal) decimal.Decimal
}

// FixedConfig holds the recognized fixed-fraction sizer options.
type FixedConfig struct {
	FixedPct          decimal.Decimal
	MaxPct            decimal.Decimal
	MinSize           decimal.Decimal
	ScaleByConfidence bool
}

// DefaultFixedConfig returns reasonable out-of-the-box sizing bounds.
func DefaultFixedConfig() FixedConfig {
	return FixedConfig{
		FixedPct:          decimal.NewFromFloat(0.02),
		MaxPct:            decimal.NewFromFloat(0.05),
		MinSize:           decimal.NewFromInt(1),
		ScaleByConfidence: true,
	}
}

// FixedPolicy sizes a position as a fixed fraction of bankroll,
// optionally scaled by signal confidence, capped at MaxPct and floored
// at MinSize.
type FixedPolicy struct {
	cfg FixedConfig
}

// NewFixedPolicy constructs a FixedPolicy.
func NewFixedPolicy(cfg FixedConfig) *FixedPolicy {
	return &FixedPolicy{cfg: cfg}
}

// Size implements Policy.
func (p *FixedPolicy) Size(sig Signal, bankroll decimal.Decimal) decimal.Decimal {
	base := bankroll.Mul(p.cfg.FixedPct)
	if p.cfg.ScaleByConfidence && sig.Confidence.IsPositive() {
		base = base.Mul(sig.Confidence)
	}
	max := bankroll.Mul(p.cfg.MaxPct)
	if base.GreaterThan(max) {
		base = max
	}
	if base.LessThan(p.cfg.MinSize) {
		return decimal.Zero
	}
	return base
}

// KellyConfig holds the recognized fractional-Kelly sizer options.
type KellyConfig struct {
	Fraction  decimal.Decimal
	MaxBetPct decimal.Decimal
}

// DefaultKellyConfig matches original_source's worked example: quarter
// Kelly, capped at 1% of bankroll.
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		Fraction:  decimal.NewFromFloat(0.25),
		MaxBetPct: decimal.NewFromFloat(0.01),
	}
}

// KellyPolicy sizes a position using fractional Kelly criterion:
// edge = fair_value - market_price; kelly_fraction = edge / (1 -
// market_price); adjusted by Fraction; capped at bankroll*MaxBetPct.
type KellyPolicy struct {
	cfg KellyConfig
}

// NewKellyPolicy constructs a KellyPolicy.
func NewKellyPolicy(cfg KellyConfig) *KellyPolicy {
	return &KellyPolicy{cfg: cfg}
}

// Size implements Policy.
func (p *KellyPolicy) Size(sig Signal, bankroll decimal.Decimal) decimal.Decimal {
	edge := sig.FairValue.Sub(sig.MarketPrice)
	if !edge.IsPositive() || sig.MarketPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero
	}
	kellyFraction := edge.Div(decimal.NewFromInt(1).Sub(sig.MarketPrice))
	adjusted := kellyFraction.Mul(p.cfg.Fraction)
	position := adjusted.Mul(bankroll)

	capAmt := bankroll.Mul(p.cfg.MaxBetPct)
	if position.GreaterThan(capAmt) {
		position = capAmt
	}
	if position.IsNegative() {
		return decimal.Zero
	}
	return position
}
