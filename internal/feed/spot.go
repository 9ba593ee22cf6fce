// Package feed implements the venue-facing ingestion layer: the spot
// trade feed and the depth-of-book feed, both built atop the
// reconnecting transport.
package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polyhft/tradeengine/internal/transport"
)

// PriceTick is a single observed trade price from the spot feed.
type PriceTick struct {
	Symbol     string
	Price      decimal.Decimal
	LocalTS    time.Time
	ExchangeTS time.Time
}

// rawTrade mirrors the venue's trade-stream wire format: event type,
// event time (ms), symbol, price string, trade time (ms).
type rawTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// SpotFeed wraps a reconnecting transport and decodes inbound frames
// into PriceTick values.
type SpotFeed struct {
	conn *transport.Conn
	log  *zap.SugaredLogger
}

// NewSpotFeed constructs a spot feed over the given transport
// configuration.
func NewSpotFeed(cfg transport.Config, log *zap.SugaredLogger) *SpotFeed {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SpotFeed{conn: transport.New(cfg, log), log: log}
}

// Run starts the feed and returns a bounded channel of decoded ticks.
// The feed task exits when ctx is cancelled or the returned channel's
// consumer stops draining and the upstream transport closes.
func (f *SpotFeed) Run(ctx context.Context) <-chan PriceTick {
	frames := f.conn.Connect(ctx)
	out := make(chan PriceTick, 1024)

	go func() {
		defer close(out)
		for frame := range frames {
			if frame.Kind != transport.Text {
				continue
			}
			tick, ok := decodeTrade(frame.Payload)
			if !ok {
				continue
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func decodeTrade(payload []byte) (PriceTick, bool) {
	var raw rawTrade
	if err := json.Unmarshal(payload, &raw); err != nil {
		return PriceTick{}, false
	}
	if raw.EventType != "trade" {
		return PriceTick{}, false
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil || !price.IsPositive() {
		return PriceTick{}, false
	}
	return PriceTick{
		Symbol:     raw.Symbol,
		Price:      price,
		LocalTS:    time.Now().UTC(),
		ExchangeTS: time.UnixMilli(raw.TradeTime).UTC(),
	}, true
}

func parseMillisString(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
