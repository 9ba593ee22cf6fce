// Package lag implements the lag detector: compares a confirmed
// momentum signal to a fresh odds snapshot and decides whether the
// prediction-market price has not yet adjusted.
package lag

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/momentum"
)

// Side is the leg a lag signal recommends trading.
type Side int

const (
	Yes Side = iota
	No
)

// RejectionReason is a typed "no signal" outcome — absence, not an
// error.
type RejectionReason string

const (
	NoRejection      RejectionReason = ""
	TooEarlyInWindow RejectionReason = "too_early_in_window"
	TooCloseToClose  RejectionReason = "too_close_to_close"
	MarketNotActive  RejectionReason = "market_not_active"
	OddsAlreadyMoved RejectionReason = "odds_already_moved"
	LagTooSmall      RejectionReason = "lag_too_small"
)

// Odds is a fresh YES/NO ask snapshot.
type Odds struct {
	YesPrice decimal.Decimal
	NoPrice  decimal.Decimal
}

// Config holds the recognized lag-detector options.
type Config struct {
	MinLagCents           decimal.Decimal
	MaxYesForUp           decimal.Decimal
	MinYesForDown         decimal.Decimal
	MinSecondsAfterOpen   time.Duration
	MaxSecondsBeforeClose time.Duration
	PriceSensitivity      decimal.Decimal
}

// DefaultConfig returns reasonable out-of-the-box thresholds.
func DefaultConfig() Config {
	return Config{
		MinLagCents:           decimal.NewFromFloat(0.10),
		MaxYesForUp:           decimal.NewFromFloat(0.60),
		MinYesForDown:         decimal.NewFromFloat(0.40),
		MinSecondsAfterOpen:   60 * time.Second,
		MaxSecondsBeforeClose: 120 * time.Second,
		PriceSensitivity:      decimal.NewFromInt(10),
	}
}

// Signal is the result of a successful lag detection.
type Signal struct {
	Side              Side
	LagMagnitude      decimal.Decimal
	ExpectedPrice     decimal.Decimal
	ActualPrice       decimal.Decimal
	Momentum          momentum.Signal
	Confidence        decimal.Decimal
	SecondsSinceOpen  time.Duration
	SecondsUntilClose time.Duration
}

// Detector evaluates momentum+odds pairs against a configuration.
type Detector struct {
	cfg Config
}

// NewDetector constructs a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect evaluates at time.Now(); DetectAt allows tests to supply a
// fixed clock.
func (d *Detector) Detect(mom momentum.Signal, odds Odds, m market.Market) (Signal, RejectionReason) {
	return d.DetectAt(mom, odds, m, time.Now().UTC())
}

// DetectAt runs the ordered rejection checks: trading-window bounds
// always precede the lag-magnitude check.
func (d *Detector) DetectAt(mom momentum.Signal, odds Odds, m market.Market, now time.Time) (Signal, RejectionReason) {
	sinceOpen := now.Sub(m.OpenTime)
	untilClose := m.CloseTime.Sub(now)

	if sinceOpen < d.cfg.MinSecondsAfterOpen {
		return Signal{}, TooEarlyInWindow
	}
	if untilClose < d.cfg.MaxSecondsBeforeClose {
		return Signal{}, TooCloseToClose
	}
	if now.Before(m.OpenTime) || now.After(m.CloseTime) {
		return Signal{}, MarketNotActive
	}

	// expected is the magnitude-only expected price shift, computed the
	// same way regardless of direction; Up reads it directly as the
	// expected YES price, Down mirrors it via 1-expected.
	expected := decimal.NewFromFloat(0.5).Add(mom.MovePct.Mul(d.cfg.PriceSensitivity))
	expected = clamp(expected, decimal.NewFromFloat(0.10), decimal.NewFromFloat(0.90))

	var side Side
	var lag decimal.Decimal

	if mom.Direction > 0 { // Up
		if odds.YesPrice.GreaterThanOrEqual(d.cfg.MaxYesForUp) {
			return Signal{}, OddsAlreadyMoved
		}
		side = Yes
		lag = expected.Sub(odds.YesPrice)
	} else { // Down
		if odds.YesPrice.LessThanOrEqual(d.cfg.MinYesForDown) {
			return Signal{}, OddsAlreadyMoved
		}
		side = No
		expectedYes := decimal.NewFromInt(1).Sub(expected)
		lag = odds.YesPrice.Sub(expectedYes)
	}

	if lag.LessThan(d.cfg.MinLagCents) {
		return Signal{}, LagTooSmall
	}

	confidence := decimal.NewFromFloat(0.5).Mul(
		decimal.Min(lag.Div(decimal.NewFromFloat(0.20)), decimal.NewFromInt(1)).Add(mom.Confidence),
	)

	return Signal{
		Side:              side,
		LagMagnitude:      lag,
		ExpectedPrice:     expected,
		ActualPrice:       odds.YesPrice,
		Momentum:          mom,
		Confidence:        confidence,
		SecondsSinceOpen:  sinceOpen,
		SecondsUntilClose: untilClose,
	}, NoRejection
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
