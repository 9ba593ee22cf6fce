package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polyhft/tradeengine/internal/book"
	"github.com/polyhft/tradeengine/internal/transport"
)

// Update is a single book-store mutation produced by the depth feed:
// either a full snapshot replace or an incremental delta merge.
type Update struct {
	TokenID   string
	Snapshot  bool
	Bids      []book.Level // populated when Snapshot
	Asks      []book.Level // populated when Snapshot
	Side      book.Side    // populated when !Snapshot
	Changes   []book.Level // populated when !Snapshot
	Timestamp time.Time
}

type rawLevel struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

type rawDepthEvent struct {
	EventType    string     `json:"event_type"`
	AssetID      string     `json:"asset_id"`
	Bids         []rawLevel `json:"bids"`
	Asks         []rawLevel `json:"asks"`
	PriceChanges []rawLevel `json:"price_changes"`
	Timestamp    string     `json:"timestamp"`
}

// subscribeMessage is the single message sent on Connected, listing
// the token identifiers to stream.
type subscribeMessage struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// DepthFeed wraps a reconnecting bidirectional transport and decodes
// inbound snapshot/delta events into book Update values.
type DepthFeed struct {
	conn *transport.Conn
	log  *zap.SugaredLogger
}

// NewDepthFeed constructs a depth feed over the given transport config.
func NewDepthFeed(cfg transport.Config, log *zap.SugaredLogger) *DepthFeed {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DepthFeed{conn: transport.New(cfg, log), log: log}
}

// Run subscribes to tokenIDs on connect and streams decoded Updates.
func (f *DepthFeed) Run(ctx context.Context, tokenIDs []string) <-chan Update {
	frames, send := f.conn.ConnectBidirectional(ctx)
	out := make(chan Update, 1024)

	go func() {
		defer close(out)
		for frame := range frames {
			switch frame.Kind {
			case transport.Connected:
				msg, err := json.Marshal(subscribeMessage{AssetsIDs: tokenIDs, Type: "market"})
				if err != nil {
					f.log.Errorw("depth feed: marshal subscribe", "error", err)
					continue
				}
				select {
				case send <- string(msg):
				case <-ctx.Done():
					return
				}
			case transport.Text:
				for _, upd := range decodeDepthPayload(frame.Payload, f.log) {
					select {
					case out <- upd:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

// decodeDepthPayload parses a single inbound frame, which may encode
// one event object or an array of event objects. Parse failure on any
// individual event is logged and dropped; it never tears down the
// feed.
func decodeDepthPayload(payload []byte, log *zap.SugaredLogger) []Update {
	var events []rawDepthEvent

	var single rawDepthEvent
	if err := json.Unmarshal(payload, &single); err == nil && single.EventType != "" {
		events = []rawDepthEvent{single}
	} else if err := json.Unmarshal(payload, &events); err != nil {
		log.Debugw("depth feed: drop unparseable event", "error", err)
		return nil
	}

	updates := make([]Update, 0, len(events))
	for _, ev := range events {
		upd, ok := decodeDepthEvent(ev, log)
		if ok {
			updates = append(updates, upd)
		}
	}
	return updates
}

func decodeDepthEvent(ev rawDepthEvent, log *zap.SugaredLogger) (Update, bool) {
	ts := time.Now().UTC()
	if parsed, ok := parseMillisString(ev.Timestamp); ok {
		ts = parsed
	}

	switch {
	case ev.EventType == "book" || (len(ev.Bids) > 0 && len(ev.Asks) > 0 && ev.AssetID != ""):
		bids, ok1 := decodeLevels(ev.Bids)
		asks, ok2 := decodeLevels(ev.Asks)
		if !ok1 || !ok2 {
			log.Debugw("depth feed: drop unparseable snapshot", "asset_id", ev.AssetID)
			return Update{}, false
		}
		return Update{TokenID: ev.AssetID, Snapshot: true, Bids: bids, Asks: asks, Timestamp: ts}, true

	case ev.EventType == "price_change" || len(ev.PriceChanges) > 0:
		return decodePriceChange(ev.PriceChanges, ts, log)

	default:
		// last_trade_price, tick_size_change, etc. are ignored.
		return Update{}, false
	}
}

func decodePriceChange(changes []rawLevel, ts time.Time, log *zap.SugaredLogger) (Update, bool) {
	if len(changes) == 0 {
		return Update{}, false
	}
	tokenID := changes[0].AssetID
	side, ok := parseSide(changes[0].Side)
	if !ok {
		log.Debugw("depth feed: drop price_change with unknown side")
		return Update{}, false
	}
	levels, ok := decodeLevels(changes)
	if !ok {
		log.Debugw("depth feed: drop unparseable price_change", "asset_id", tokenID)
		return Update{}, false
	}
	return Update{TokenID: tokenID, Snapshot: false, Side: side, Changes: levels, Timestamp: ts}, true
}

func decodeLevels(raw []rawLevel) ([]book.Level, bool) {
	out := make([]book.Level, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, false
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, false
		}
		out = append(out, book.Level{Price: price, Size: size})
	}
	return out, true
}

func parseSide(s string) (book.Side, bool) {
	switch s {
	case "BUY":
		return book.Bid, true
	case "SELL":
		return book.Ask, true
	default:
		return 0, false
	}
}
