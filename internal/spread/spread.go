// Package spread implements the spread-capture detector: a
// purely reactive check over a paired YES/NO book view for sub-unit
// combined ask cost.
package spread

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polyhft/tradeengine/internal/book"
	"github.com/polyhft/tradeengine/internal/market"
)

// Config holds the recognized spread-detector options.
type Config struct {
	MinProfitPct   decimal.Decimal
	FeeRatePerSide decimal.Decimal
	MaxBookAgeMs   int64
	BaseSize       decimal.Decimal
	MaxPositions   int
}

// DefaultConfig returns reasonable out-of-the-box thresholds.
func DefaultConfig() Config {
	return Config{
		MinProfitPct:   decimal.NewFromFloat(0.02),
		FeeRatePerSide: decimal.NewFromFloat(0.005),
		MaxBookAgeMs:   2000,
		BaseSize:       decimal.NewFromInt(5),
		MaxPositions:   50,
	}
}

// Signal is an emitted spread-capture opportunity.
type Signal struct {
	ID           uuid.UUID
	Market       market.Market
	YesPrice     decimal.Decimal
	NoPrice      decimal.Decimal
	TotalCost    decimal.Decimal
	GrossProfit  decimal.Decimal
	NetProfit    decimal.Decimal
	ProfitPct    decimal.Decimal
	SizePerLeg   decimal.Decimal
	YesLiquidity decimal.Decimal
	NoLiquidity  decimal.Decimal
	Timestamp    time.Time
}

// ExpectedProfitUSD returns net_profit * sizePerLeg.
func (s Signal) ExpectedProfitUSD(sizePerLeg decimal.Decimal) decimal.Decimal {
	return s.NetProfit.Mul(sizePerLeg)
}

// Detector evaluates MarketBooks views against a configuration and
// gates emission per-market by an active-position counter.
type Detector struct {
	cfg Config

	mu              sync.Mutex
	activePositions map[string]int
}

// NewDetector constructs a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, activePositions: make(map[string]int)}
}

// SetActivePositions records the current open-position count for a
// market, used to gate emission at MaxPositions.
func (d *Detector) SetActivePositions(conditionID string, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activePositions[conditionID] = count
}

// Detect runs the 6-step arbitrage decision at the current time.
func (d *Detector) Detect(m market.Market, books book.MarketBooks) (Signal, bool) {
	return d.detectAt(m, books, time.Now().UTC())
}

func (d *Detector) detectAt(m market.Market, books book.MarketBooks, now time.Time) (Signal, bool) {
	d.mu.Lock()
	active := d.activePositions[m.ConditionID]
	d.mu.Unlock()
	if active >= d.cfg.MaxPositions {
		return Signal{}, false
	}

	if books.MaxAgeMs(now) > d.cfg.MaxBookAgeMs {
		return Signal{}, false
	}

	yesAsk, ok1 := books.Yes.BestAsk()
	noAsk, ok2 := books.No.BestAsk()
	if !ok1 || !ok2 {
		return Signal{}, false
	}
	total := yesAsk.Price.Add(noAsk.Price)
	if total.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Signal{}, false
	}

	grossProfit := decimal.NewFromInt(1).Sub(total)
	totalFees := d.cfg.FeeRatePerSide.Mul(decimal.NewFromInt(2))
	netProfit := grossProfit.Sub(totalFees)
	if !netProfit.IsPositive() {
		return Signal{}, false
	}

	profitPct := netProfit.Div(total)
	if profitPct.LessThan(d.cfg.MinProfitPct) {
		return Signal{}, false
	}

	minLiquidity := decimal.Min(yesAsk.Size, noAsk.Size)
	sizePerLeg := decimal.Min(d.cfg.BaseSize, minLiquidity)
	if sizePerLeg.LessThan(decimal.NewFromInt(1)) {
		return Signal{}, false
	}

	return Signal{
		ID:           uuid.New(),
		Market:       m,
		YesPrice:     yesAsk.Price,
		NoPrice:      noAsk.Price,
		TotalCost:    total,
		GrossProfit:  grossProfit,
		NetProfit:    netProfit,
		ProfitPct:    profitPct,
		SizePerLeg:   sizePerLeg,
		YesLiquidity: yesAsk.Size,
		NoLiquidity:  noAsk.Size,
		Timestamp:    now,
	}, true
}
