package risk

import "github.com/shopspring/decimal"

// HaltReason names why trading should stop, with daily loss always
// checked ahead of peak drawdown.
type HaltReason string

const (
	NoHalt         HaltReason = ""
	DailyLossLimit HaltReason = "daily_loss_limit"
	MaxDrawdown    HaltReason = "max_drawdown"
)

// PositionLimits mirrors the venue's account-level risk posture.
type PositionLimits struct {
	MaxPositionPct         decimal.Decimal
	MaxConcurrentPositions int
	MaxDailyLossPct        decimal.Decimal
	MaxDrawdownPct         decimal.Decimal
	MaxExposurePct         decimal.Decimal
}

// DefaultPositionLimits matches the venue's defaults.
func DefaultPositionLimits() PositionLimits {
	return PositionLimits{
		MaxPositionPct:         decimal.NewFromFloat(0.01),
		MaxConcurrentPositions: 3,
		MaxDailyLossPct:        decimal.NewFromFloat(0.05),
		MaxDrawdownPct:         decimal.NewFromFloat(0.10),
		MaxExposurePct:         decimal.NewFromFloat(0.10),
	}
}

// DrawdownMonitor tracks peak/current/daily-start equity and decides
// whether trading should halt.
type DrawdownMonitor struct {
	peakEquity       decimal.Decimal
	currentEquity    decimal.Decimal
	dailyStartEquity decimal.Decimal
	dailyPnL         decimal.Decimal
}

// NewDrawdownMonitor seeds all equity tracking fields at startEquity.
func NewDrawdownMonitor(startEquity decimal.Decimal) *DrawdownMonitor {
	return &DrawdownMonitor{
		peakEquity:       startEquity,
		currentEquity:    startEquity,
		dailyStartEquity: startEquity,
	}
}

// Update records a new equity mark, advancing the peak if exceeded and
// accumulating the day's PnL delta.
func (d *DrawdownMonitor) Update(equity decimal.Decimal) {
	d.dailyPnL = d.dailyPnL.Add(equity.Sub(d.currentEquity))
	d.currentEquity = equity
	if equity.GreaterThan(d.peakEquity) {
		d.peakEquity = equity
	}
}

// CurrentDrawdown returns the fractional decline from peak equity.
func (d *DrawdownMonitor) CurrentDrawdown() decimal.Decimal {
	if !d.peakEquity.IsPositive() {
		return decimal.Zero
	}
	return d.peakEquity.Sub(d.currentEquity).Div(d.peakEquity)
}

// DailyDrawdown returns the fractional decline from the day's starting
// equity.
func (d *DrawdownMonitor) DailyDrawdown() decimal.Decimal {
	if !d.dailyStartEquity.IsPositive() {
		return decimal.Zero
	}
	return d.dailyStartEquity.Sub(d.currentEquity).Div(d.dailyStartEquity)
}

// ShouldHalt checks the daily loss limit before the peak drawdown
// limit: a breach of both on the same update reports DailyLossLimit.
func (d *DrawdownMonitor) ShouldHalt(limits PositionLimits) (bool, HaltReason) {
	if limits.MaxDailyLossPct.IsPositive() && d.DailyDrawdown().GreaterThanOrEqual(limits.MaxDailyLossPct) {
		return true, DailyLossLimit
	}
	if limits.MaxDrawdownPct.IsPositive() && d.CurrentDrawdown().GreaterThanOrEqual(limits.MaxDrawdownPct) {
		return true, MaxDrawdown
	}
	return false, NoHalt
}

// ResetDaily re-anchors the daily-start equity to the current mark,
// clearing the day's accumulated PnL.
func (d *DrawdownMonitor) ResetDaily() {
	d.dailyStartEquity = d.currentEquity
	d.dailyPnL = decimal.Zero
}
