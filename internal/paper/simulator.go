// Package paper implements paper (simulated) order execution:
// immediate fills against a book snapshot, with fee accounting and a
// cash/inventory ledger, all in decimal.Decimal.
package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyhft/tradeengine/internal/book"
)

// Config holds the recognized paper-simulator options.
type Config struct {
	InitialBalanceUSDC decimal.Decimal
	FeeRate            decimal.Decimal // fraction of notional, e.g. 0.005 = 0.5%
	SlippageRate       decimal.Decimal
	AllowShort         bool
}

// DefaultConfig returns reasonable out-of-the-box fee/slippage rates.
func DefaultConfig() Config {
	return Config{
		InitialBalanceUSDC: decimal.NewFromInt(1000),
		FeeRate:            decimal.NewFromFloat(0.005),
		SlippageRate:       decimal.Zero,
		AllowShort:         true,
	}
}

// Side is an order's direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus is the lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusFilled    OrderStatus = "FILLED"
	StatusLive      OrderStatus = "LIVE"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Fill is a completed (or resting) execution record.
type Fill struct {
	OrderID    string
	TokenID    string
	Side       Side
	Status     OrderStatus
	Filled     bool
	Price      decimal.Decimal
	Size       decimal.Decimal
	AmountUSDC decimal.Decimal
	FeeUSDC    decimal.Decimal
	Timestamp  time.Time
}

// Snapshot is the simulator's accounting state at a point in time.
type Snapshot struct {
	InitialBalanceUSDC decimal.Decimal
	BalanceUSDC        decimal.Decimal
	FeesPaidUSDC       decimal.Decimal
	TotalVolumeUSDC    decimal.Decimal
	TotalTrades        int
	AllowShort         bool
}

// Simulator executes orders immediately against a supplied book
// snapshot and tracks cash balance, fees and per-token inventory.
type Simulator struct {
	mu sync.Mutex

	cfg Config

	sequence        int64
	balanceUSDC     decimal.Decimal
	feesPaidUSDC    decimal.Decimal
	totalVolumeUSDC decimal.Decimal
	totalTrades     int
	inventory       map[string]decimal.Decimal
	liveOrders      map[string]Fill
}

// NewSimulator constructs a Simulator.
func NewSimulator(cfg Config) *Simulator {
	if cfg.InitialBalanceUSDC.IsZero() {
		cfg.InitialBalanceUSDC = decimal.NewFromInt(1000)
	}
	return &Simulator{
		cfg:         cfg,
		balanceUSDC: cfg.InitialBalanceUSDC,
		inventory:   make(map[string]decimal.Decimal),
		liveOrders:  make(map[string]Fill),
	}
}

// Snapshot returns the current accounting state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		InitialBalanceUSDC: s.cfg.InitialBalanceUSDC,
		BalanceUSDC:        s.balanceUSDC,
		FeesPaidUSDC:       s.feesPaidUSDC,
		TotalVolumeUSDC:    s.totalVolumeUSDC,
		TotalTrades:        s.totalTrades,
		AllowShort:         s.cfg.AllowShort,
	}
}

// SubmitOrder places a market order against ob's current top of book
// and fills it immediately, applying slippage and fees.
func (s *Simulator) SubmitOrder(tokenID string, side Side, amountUSDC decimal.Decimal, ob book.OrderBook) (Fill, error) {
	if amountUSDC.LessThanOrEqual(decimal.Zero) {
		return Fill{}, fmt.Errorf("amount_usdc must be positive")
	}

	var price decimal.Decimal
	switch side {
	case Buy:
		ask, ok := ob.BestAsk()
		if !ok {
			return Fill{}, fmt.Errorf("missing top-of-book ask")
		}
		price = ask.Price
	case Sell:
		bid, ok := ob.BestBid()
		if !ok {
			return Fill{}, fmt.Errorf("missing top-of-book bid")
		}
		price = bid.Price
	default:
		return Fill{}, fmt.Errorf("unsupported side: %s", side)
	}
	price = applySlippage(price, side, s.cfg.SlippageRate)
	return s.fill(tokenID, side, amountUSDC, price)
}

// CancelOrder removes a resting (unfilled) order by ID. It reports
// whether an order with that ID was found and still live.
func (s *Simulator) CancelOrder(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveOrders[orderID]; !ok {
		return false
	}
	delete(s.liveOrders, orderID)
	return true
}

// GetFills returns all live (unfilled, resting) orders currently
// tracked by the simulator.
func (s *Simulator) GetFills() []Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fill, 0, len(s.liveOrders))
	for _, f := range s.liveOrders {
		out = append(out, f)
	}
	return out
}

func (s *Simulator) fill(tokenID string, side Side, amountUSDC, price decimal.Decimal) (Fill, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return Fill{}, fmt.Errorf("invalid execution price")
	}

	fee := amountUSDC.Mul(s.cfg.FeeRate)
	size := amountUSDC.Div(price)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch side {
	case Buy:
		needed := amountUSDC.Add(fee)
		if needed.GreaterThan(s.balanceUSDC) {
			return Fill{}, fmt.Errorf("insufficient paper balance: need %s have %s", needed, s.balanceUSDC)
		}
	case Sell:
		if !s.cfg.AllowShort {
			current := s.inventory[tokenID]
			if current.LessThan(size) {
				return Fill{}, fmt.Errorf("insufficient paper inventory: need %s have %s", size, current)
			}
		}
	default:
		return Fill{}, fmt.Errorf("unsupported side: %s", side)
	}

	s.sequence++
	orderID := fmt.Sprintf("paper-order-%06d", s.sequence)

	if side == Buy {
		s.balanceUSDC = s.balanceUSDC.Sub(amountUSDC).Sub(fee)
		s.inventory[tokenID] = s.inventory[tokenID].Add(size)
	} else {
		s.balanceUSDC = s.balanceUSDC.Add(amountUSDC).Sub(fee)
		s.inventory[tokenID] = s.inventory[tokenID].Sub(size)
		if s.inventory[tokenID].IsZero() {
			delete(s.inventory, tokenID)
		}
	}
	s.feesPaidUSDC = s.feesPaidUSDC.Add(fee)
	s.totalVolumeUSDC = s.totalVolumeUSDC.Add(amountUSDC)
	s.totalTrades++

	return Fill{
		OrderID:    orderID,
		TokenID:    tokenID,
		Side:       side,
		Status:     StatusFilled,
		Filled:     true,
		Price:      price,
		Size:       size,
		AmountUSDC: amountUSDC,
		FeeUSDC:    fee,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func applySlippage(price decimal.Decimal, side Side, slippageRate decimal.Decimal) decimal.Decimal {
	if !slippageRate.IsPositive() {
		return price
	}
	if side == Buy {
		return price.Mul(decimal.NewFromInt(1).Add(slippageRate))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(slippageRate))
}
