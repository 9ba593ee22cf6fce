package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// FairValue is the probability split produced by a fair-value model.
type FairValue struct {
	YesProb    decimal.Decimal
	NoProb     decimal.Decimal
	Confidence decimal.Decimal
}

// FairValueParams are the inputs to a fair-value model evaluation.
type FairValueParams struct {
	CurrentPrice decimal.Decimal
	OpenPrice    decimal.Decimal
	Volatility   decimal.Decimal
	TimeToExpiry time.Duration
}

// FairValueModel is the small capability surface fair-value
// collaborators implement, allowing paper vs. backtest or alternative
// models to be injected at construction.
type FairValueModel interface {
	Calculate(params FairValueParams) FairValue
}

// GBMModel estimates P(up) with a Black-Scholes-style probability:
// P(up) = N(d2) where d2 = (ln(S/K) - 0.5*sigma^2*T) / (sigma*sqrt(T)).
// At t->0 or sigma=0 it collapses to the deterministic indicator
// rather than propagating NaN.
type GBMModel struct{}

// NewGBMModel constructs a GBMModel.
func NewGBMModel() *GBMModel { return &GBMModel{} }

// Calculate implements FairValueModel.
func (GBMModel) Calculate(p FairValueParams) FairValue {
	tYears := p.TimeToExpiry.Seconds() / (365.25 * 24 * 60 * 60)

	sigma, _ := p.Volatility.Float64()
	if tYears <= 0 || sigma == 0 {
		yesProb := decimal.Zero
		if p.CurrentPrice.GreaterThanOrEqual(p.OpenPrice) {
			yesProb = decimal.NewFromInt(1)
		}
		return FairValue{
			YesProb:    yesProb,
			NoProb:     decimal.NewFromInt(1).Sub(yesProb),
			Confidence: decimal.NewFromInt(1),
		}
	}

	s, _ := p.CurrentPrice.Float64()
	k, _ := p.OpenPrice.Float64()
	if k <= 0 || s <= 0 {
		return FairValue{
			YesProb:    decimal.NewFromFloat(0.5),
			NoProb:     decimal.NewFromFloat(0.5),
			Confidence: decimal.Zero,
		}
	}

	d2 := (math.Log(s/k) - 0.5*sigma*sigma*tYears) / (sigma * math.Sqrt(tYears))
	yesProbF := normalCDF(d2)
	yesProb := decimal.NewFromFloat(yesProbF)
	noProb := decimal.NewFromInt(1).Sub(yesProb)

	confF := 1.0 - math.Min(tYears, 1.0)
	confidence := decimal.NewFromFloat(confF)

	return FairValue{YesProb: yesProb, NoProb: noProb, Confidence: confidence}
}

// normalCDF approximates the standard normal CDF (Abramowitz & Stegun
// 7.1.26), matching the original model's numerics exactly.
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	ax := math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*ax)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-ax*ax)

	return 0.5 * (1.0 + sign*y)
}
