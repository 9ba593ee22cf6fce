// Package ledger implements the position ledger: cost-basis
// averaging on open, side-sensitive realized-PnL accounting on close,
// and mark-to-market unrealized PnL, all in decimal.Decimal.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Side is the direction of an opening fill.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Position is the aggregated holding for one token.
type Position struct {
	TokenID       string
	NetSize       decimal.Decimal // positive = long, negative = short
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	MarkPrice     decimal.Decimal
	TotalFills    int
}

// UnrealizedPnL returns the mark-to-market PnL on the open quantity.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.NetSize.IsZero() {
		return decimal.Zero
	}
	return p.MarkPrice.Sub(p.AvgEntryPrice).Mul(p.NetSize)
}

// Ledger tracks positions across tokens.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// New constructs an empty Ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

func (l *Ledger) positionFor(tokenID string) *Position {
	p, ok := l.positions[tokenID]
	if !ok {
		p = &Position{TokenID: tokenID}
		l.positions[tokenID] = p
	}
	return p
}

// Open increases a position in the direction of side, averaging cost
// basis with any existing same-direction holding. Opening in the
// opposite direction of an existing position is treated by Close
// semantics instead; callers should route fills that reduce exposure
// through Close.
func (l *Ledger) Open(tokenID string, side Side, price, size decimal.Decimal) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positionFor(tokenID)
	signedSize := size
	if side == Short {
		signedSize = size.Neg()
	}

	totalCost := p.AvgEntryPrice.Mul(p.NetSize.Abs()).Add(price.Mul(size))
	p.NetSize = p.NetSize.Add(signedSize)
	if !p.NetSize.IsZero() {
		p.AvgEntryPrice = totalCost.Div(p.NetSize.Abs())
	}
	p.TotalFills++
	return *p
}

// Close reduces an open position by size at price, realizing PnL on
// the closed quantity. The realized sign follows the position's
// direction: long positions realize (price-entry)*closedQty, short
// positions realize (entry-price)*closedQty. Closing more than the
// open quantity flips the position to the opposite side at price.
func (l *Ledger) Close(tokenID string, price, size decimal.Decimal) (realized decimal.Decimal, pos Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.positionFor(tokenID)
	p.TotalFills++

	if p.NetSize.IsZero() {
		return decimal.Zero, *p
	}

	if p.NetSize.IsPositive() {
		closedQty := decimal.Min(size, p.NetSize)
		realized = price.Sub(p.AvgEntryPrice).Mul(closedQty)
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.NetSize = p.NetSize.Sub(closedQty)

		remaining := size.Sub(closedQty)
		if remaining.IsPositive() {
			p.NetSize = remaining.Neg()
			p.AvgEntryPrice = price
		}
	} else {
		absCurrent := p.NetSize.Abs()
		closedQty := decimal.Min(size, absCurrent)
		realized = p.AvgEntryPrice.Sub(price).Mul(closedQty)
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.NetSize = p.NetSize.Add(closedQty)

		remaining := size.Sub(closedQty)
		if remaining.IsPositive() {
			p.NetSize = remaining
			p.AvgEntryPrice = price
		}
	}
	if p.NetSize.IsZero() {
		p.AvgEntryPrice = decimal.Zero
	}
	return realized, *p
}

// UpdateMark records the latest mark price for a token, used by
// TotalPnL's unrealized component.
func (l *Ledger) UpdateMark(tokenID string, markPrice decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.positionFor(tokenID)
	p.MarkPrice = markPrice
}

// Position returns a copy of the current position for a token.
func (l *Ledger) Position(tokenID string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[tokenID]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot of all tracked positions.
func (l *Ledger) Positions() map[string]Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Position, len(l.positions))
	for k, v := range l.positions {
		out[k] = *v
	}
	return out
}

// TotalPnL sums realized plus unrealized PnL across all positions.
func (l *Ledger) TotalPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.RealizedPnL).Add(p.UnrealizedPnL())
	}
	return total
}
