package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFixedPolicyBasic(t *testing.T) {
	p := NewFixedPolicy(FixedConfig{
		FixedPct:          decimal.NewFromFloat(0.02),
		MaxPct:            decimal.NewFromFloat(0.05),
		MinSize:           decimal.NewFromInt(1),
		ScaleByConfidence: false,
	})
	size := p.Size(Signal{}, decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(20)) {
		t.Errorf("size = %v, want 20", size)
	}
}

func TestFixedPolicyScaledByConfidence(t *testing.T) {
	p := NewFixedPolicy(FixedConfig{
		FixedPct:          decimal.NewFromFloat(0.02),
		MaxPct:            decimal.NewFromFloat(0.05),
		MinSize:           decimal.NewFromInt(1),
		ScaleByConfidence: true,
	})
	size := p.Size(Signal{Confidence: decimal.NewFromFloat(0.5)}, decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("size = %v, want 10 (20 * 0.5 confidence)", size)
	}
}

func TestFixedPolicyCappedAtMaxPct(t *testing.T) {
	p := NewFixedPolicy(FixedConfig{
		FixedPct: decimal.NewFromFloat(0.10),
		MaxPct:   decimal.NewFromFloat(0.05),
		MinSize:  decimal.NewFromInt(1),
	})
	size := p.Size(Signal{}, decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(50)) {
		t.Errorf("size = %v, want 50 (capped at 5%%)", size)
	}
}

func TestFixedPolicyBelowMinSizeReturnsZero(t *testing.T) {
	p := NewFixedPolicy(FixedConfig{
		FixedPct: decimal.NewFromFloat(0.001),
		MaxPct:   decimal.NewFromFloat(0.05),
		MinSize:  decimal.NewFromInt(5),
	})
	size := p.Size(Signal{}, decimal.NewFromInt(1000))
	if !size.IsZero() {
		t.Errorf("size = %v, want 0 below min_size", size)
	}
}

// TestKellyWorkedExample reproduces original_source's canonical
// example: 55% fair value vs 50% market price, quarter Kelly, capped
// at 1% of a $1000 bankroll -> $10.
func TestKellyWorkedExample(t *testing.T) {
	p := NewKellyPolicy(KellyConfig{
		Fraction:  decimal.NewFromFloat(0.25),
		MaxBetPct: decimal.NewFromFloat(0.01),
	})
	sig := Signal{FairValue: decimal.NewFromFloat(0.55), MarketPrice: decimal.NewFromFloat(0.50)}
	size := p.Size(sig, decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("size = %v, want 10", size)
	}
}

func TestKellyNoEdgeReturnsZero(t *testing.T) {
	p := NewKellyPolicy(DefaultKellyConfig())
	sig := Signal{FairValue: decimal.NewFromFloat(0.48), MarketPrice: decimal.NewFromFloat(0.50)}
	size := p.Size(sig, decimal.NewFromInt(1000))
	if !size.IsZero() {
		t.Errorf("size = %v, want 0 for negative edge", size)
	}
}

func TestKellyMarketPriceAtOneReturnsZero(t *testing.T) {
	p := NewKellyPolicy(DefaultKellyConfig())
	sig := Signal{FairValue: decimal.NewFromFloat(0.99), MarketPrice: decimal.NewFromInt(1)}
	size := p.Size(sig, decimal.NewFromInt(1000))
	if !size.IsZero() {
		t.Errorf("size = %v, want 0 when market_price >= 1", size)
	}
}

func TestKellyUncappedBelowMaxBetPct(t *testing.T) {
	p := NewKellyPolicy(KellyConfig{
		Fraction:  decimal.NewFromFloat(1),
		MaxBetPct: decimal.NewFromFloat(0.50),
	})
	// edge = 0.05, kelly_fraction = 0.05/0.5 = 0.10, full Kelly -> $100 on $1000.
	sig := Signal{FairValue: decimal.NewFromFloat(0.55), MarketPrice: decimal.NewFromFloat(0.50)}
	size := p.Size(sig, decimal.NewFromInt(1000))
	if !size.Equal(decimal.NewFromInt(100)) {
		t.Errorf("size = %v, want 100", size)
	}
}
