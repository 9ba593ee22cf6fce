// Package model holds the volatility estimator — the one
// floating-point island in an otherwise decimal codebase — and the
// optional GBM fair-value collaborator.
package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const secondsPerYear = 31_536_000.0

type observation struct {
	ts    time.Time
	price float64
}

// VolatilityEstimator computes rolling realized log-return volatility
// over a sliding time window. It is the only component permitted to
// use IEEE-754 floats internally; callers convert at the boundary.
type VolatilityEstimator struct {
	window time.Duration
	prices []observation
}

// NewVolatilityEstimator creates an estimator with the given window.
func NewVolatilityEstimator(window time.Duration) *VolatilityEstimator {
	return &VolatilityEstimator{window: window}
}

// Update adds a new observation and evicts any older than the window.
func (v *VolatilityEstimator) Update(ts time.Time, price decimal.Decimal) {
	f, _ := price.Float64()
	v.prices = append(v.prices, observation{ts: ts, price: f})

	cutoff := ts.Add(-v.window)
	i := 0
	for i < len(v.prices) && v.prices[i].ts.Before(cutoff) {
		i++
	}
	v.prices = v.prices[i:]
}

// Estimate returns the annualized realized volatility, absent if fewer
// than two observations are present.
func (v *VolatilityEstimator) Estimate() (decimal.Decimal, bool) {
	if len(v.prices) < 2 {
		return decimal.Zero, false
	}

	var returns []float64
	for i := 1; i < len(v.prices); i++ {
		prev, curr := v.prices[i-1].price, v.prices[i].price
		if prev > 0 && curr > 0 {
			returns = append(returns, math.Log(curr/prev))
		}
	}
	if len(returns) == 0 {
		return decimal.Zero, false
	}

	n := float64(len(returns))
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / n

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= n
	stdDev := math.Sqrt(variance)

	avgInterval := v.window.Seconds() / n
	if avgInterval <= 0 {
		avgInterval = 1
	}
	intervalsPerYear := secondsPerYear / avgInterval
	annualized := stdDev * math.Sqrt(intervalsPerYear)

	d, err := decimal.NewFromString(formatFloat(annualized))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// StandardError reports vol/sqrt(2n), absent under the same
// conditions as Estimate.
func (v *VolatilityEstimator) StandardError() (decimal.Decimal, bool) {
	vol, ok := v.Estimate()
	if !ok {
		return decimal.Zero, false
	}
	n := len(v.prices)
	if n < 2 {
		return decimal.Zero, false
	}
	volF, _ := vol.Float64()
	se := volF / math.Sqrt(2*float64(n))
	d, err := decimal.NewFromString(formatFloat(se))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// SampleCount reports the number of observations in the window.
func (v *VolatilityEstimator) SampleCount() int {
	return len(v.prices)
}

func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}
