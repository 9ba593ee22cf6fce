// Package momentum implements a confirmed-directional-move detector:
// a sliding price window plus a confirmation-timer state machine off
// a strike reference price.
package momentum

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of an observed move relative to the strike.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

// Config holds the recognized momentum-detector options.
type Config struct {
	Window              time.Duration
	MinMovePct          decimal.Decimal
	MaxMovePct          decimal.Decimal
	ConfirmationSeconds time.Duration
}

// DefaultConfig returns reasonable out-of-the-box thresholds.
func DefaultConfig() Config {
	return Config{
		Window:              120 * time.Second,
		MinMovePct:          decimal.NewFromFloat(0.007),
		MaxMovePct:          decimal.NewFromFloat(0.05),
		ConfirmationSeconds: 30 * time.Second,
	}
}

// Signal is emitted once a directional move has been held for the
// configured confirmation period.
type Signal struct {
	Direction    Direction
	MovePct      decimal.Decimal
	StrikePrice  decimal.Decimal
	CurrentPrice decimal.Decimal
	Velocity     decimal.Decimal
	Confidence   decimal.Decimal
	DetectedAt   time.Time
}

type observation struct {
	ts    time.Time
	price decimal.Decimal
}

// Detector is a single per-market momentum state machine: Idle ->
// Candidate(direction, started_at) -> Confirmed(direction).
type Detector struct {
	cfg Config

	prices []observation

	haveDirection bool
	lastDirection Direction
	directionFrom time.Time
}

// NewDetector constructs a Detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Update records a new observation, evicting any older than the
// window.
func (d *Detector) Update(ts time.Time, price decimal.Decimal) {
	d.prices = append(d.prices, observation{ts: ts, price: price})
	cutoff := ts.Add(-d.cfg.Window)
	i := 0
	for i < len(d.prices) && d.prices[i].ts.Before(cutoff) {
		i++
	}
	d.prices = d.prices[i:]
}

// Clear resets all state.
func (d *Detector) Clear() {
	d.prices = nil
	d.haveDirection = false
}

// SampleCount reports the number of observations currently in the
// window.
func (d *Detector) SampleCount() int {
	return len(d.prices)
}

// Detect evaluates the current window against strikePrice and returns
// a confirmed signal, if the confirmation timer has elapsed for the
// current direction. strikePrice <= 0 always yields absence.
func (d *Detector) Detect(strikePrice decimal.Decimal) (Signal, bool) {
	if len(d.prices) == 0 || !strikePrice.IsPositive() {
		return Signal{}, false
	}

	latest := d.prices[len(d.prices)-1]
	move := latest.price.Sub(strikePrice).Div(strikePrice)
	absMove := move.Abs()

	if absMove.LessThan(d.cfg.MinMovePct) {
		d.haveDirection = false
		return Signal{}, false
	}
	if absMove.GreaterThan(d.cfg.MaxMovePct) {
		// Treated as a data error; state is left unchanged.
		return Signal{}, false
	}

	direction := Up
	if move.IsNegative() {
		direction = Down
	}

	if !d.haveDirection || d.lastDirection != direction {
		d.haveDirection = true
		d.lastDirection = direction
		d.directionFrom = latest.ts
		return Signal{}, false
	}

	elapsed := latest.ts.Sub(d.directionFrom)
	if elapsed < d.cfg.ConfirmationSeconds {
		return Signal{}, false
	}

	return Signal{
		Direction:    direction,
		MovePct:      absMove,
		StrikePrice:  strikePrice,
		CurrentPrice: latest.price,
		Velocity:     d.velocity(),
		Confidence:   d.confidence(absMove),
		DetectedAt:   latest.ts,
	}, true
}

// velocity returns (last-first)/seconds over the full retained window,
// not merely since the confirmation timer started.
func (d *Detector) velocity() decimal.Decimal {
	if len(d.prices) < 2 {
		return decimal.Zero
	}
	first := d.prices[0]
	last := d.prices[len(d.prices)-1]
	dt := last.ts.Sub(first.ts).Seconds()
	if dt <= 0 {
		return decimal.Zero
	}
	diff := last.price.Sub(first.price)
	return diff.Div(decimal.NewFromFloat(dt))
}

// confidence blends move-size confidence (60%) with sample-count
// confidence (40%), matching the originating model exactly.
func (d *Detector) confidence(absMove decimal.Decimal) decimal.Decimal {
	two := decimal.NewFromInt(2)
	moveRatio := absMove.Div(d.cfg.MinMovePct)
	moveRatio = decimal.Min(moveRatio, two)
	moveConfidence := moveRatio.Div(two)

	n := decimal.NewFromInt(int64(len(d.prices)))
	cap100 := decimal.NewFromInt(100)
	sampleN := decimal.Min(n, cap100)
	sampleConfidence := sampleN.Div(cap100)

	return decimal.NewFromFloat(0.6).Mul(moveConfidence).Add(decimal.NewFromFloat(0.4).Mul(sampleConfidence))
}
