package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDrawdownUpdateTracksPeak(t *testing.T) {
	d := NewDrawdownMonitor(decimal.NewFromInt(1000))
	d.Update(decimal.NewFromInt(1100))
	d.Update(decimal.NewFromInt(1050))

	want := decimal.NewFromInt(1100).Sub(decimal.NewFromInt(1050)).Div(decimal.NewFromInt(1100))
	if diff := d.CurrentDrawdown().Sub(want).Abs(); diff.GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("current drawdown = %v, want %v", d.CurrentDrawdown(), want)
	}
}

// TestDailyLossPrecedesDrawdown checks an ordering case: a 15% peak
// drawdown and a 5% daily loss limit both breached on the same update
// must report the daily loss limit, not the drawdown.
func TestDailyLossPrecedesDrawdown(t *testing.T) {
	d := NewDrawdownMonitor(decimal.NewFromInt(1000))
	d.Update(decimal.NewFromInt(1200)) // establish a higher peak
	d.Update(decimal.NewFromInt(850))  // 850/1200 = ~29% peak drawdown

	halt, reason := d.ShouldHalt(DefaultPositionLimits())
	if !halt {
		t.Fatal("expected halt")
	}
	if reason != DailyLossLimit {
		t.Errorf("expected DailyLossLimit to take precedence, got %q", reason)
	}
}

func TestNoHaltWithinLimits(t *testing.T) {
	d := NewDrawdownMonitor(decimal.NewFromInt(1000))
	d.Update(decimal.NewFromInt(980))

	halt, reason := d.ShouldHalt(DefaultPositionLimits())
	if halt {
		t.Errorf("expected no halt, got reason %q", reason)
	}
}

func TestMaxDrawdownHaltsWhenDailyLossNotBreached(t *testing.T) {
	d := NewDrawdownMonitor(decimal.NewFromInt(1000))
	d.Update(decimal.NewFromInt(1200))
	d.ResetDaily() // re-anchors daily start at 1200, clears daily pnl
	d.Update(decimal.NewFromInt(1070)) // ~10.8% drawdown from both peak and daily-start equity

	limits := DefaultPositionLimits()
	limits.MaxDailyLossPct = decimal.NewFromFloat(0.20) // loosen daily limit so only drawdown trips
	halt, reason := d.ShouldHalt(limits)
	if !halt {
		t.Fatal("expected halt on max drawdown")
	}
	if reason != MaxDrawdown {
		t.Errorf("expected MaxDrawdown, got %q", reason)
	}
}

func TestResetDailyReanchorsStartEquity(t *testing.T) {
	d := NewDrawdownMonitor(decimal.NewFromInt(1000))
	d.Update(decimal.NewFromInt(950))
	d.ResetDaily()
	if !d.DailyDrawdown().IsZero() {
		t.Errorf("expected daily drawdown reset to 0, got %v", d.DailyDrawdown())
	}
}
