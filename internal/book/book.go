// Package book implements the per-token L2 order book store: a
// single-writer, multiple-reader map from token ID to OrderBook, with
// snapshot-replace and delta-merge apply semantics.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book a level change applies to.
type Side int

const (
	Bid Side = iota
	Ask
)

// Level is a single price/size pair. A level with zero size denotes
// removal when merged into a book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// snapshotLevelThreshold is the heuristic depth above which an
// incoming update is treated as a full snapshot rather than a delta.
const snapshotLevelThreshold = 5

// OrderBook holds one token's bid and ask ladders. Bids are kept in
// descending price order, asks in ascending order.
type OrderBook struct {
	TokenID   string
	Bids      []Level
	Asks      []Level
	UpdatedAt time.Time
}

// BestBid returns the highest bid level, if any.
func (b OrderBook) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b OrderBook) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Mid returns (bestBid+bestAsk)/2, absent if either side is empty.
func (b OrderBook) Mid() (decimal.Decimal, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns bestAsk-bestBid, absent if either side is empty.
func (b OrderBook) Spread() (decimal.Decimal, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Depth sums size across the top n levels of each side.
func (b OrderBook) Depth(levels int) (bidDepth, askDepth decimal.Decimal) {
	bidDepth, askDepth = decimal.Zero, decimal.Zero
	for i := 0; i < levels && i < len(b.Bids); i++ {
		bidDepth = bidDepth.Add(b.Bids[i].Size)
	}
	for i := 0; i < levels && i < len(b.Asks); i++ {
		askDepth = askDepth.Add(b.Asks[i].Size)
	}
	return bidDepth, askDepth
}

// Store is the single-writer, multi-reader book map.
type Store struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewStore creates an empty book store.
func NewStore() *Store {
	return &Store{books: make(map[string]*OrderBook)}
}

// ApplySnapshot fully replaces the stored book for tokenID.
func (s *Store) ApplySnapshot(tokenID string, bids, asks []Level, ts time.Time) {
	sortBids(bids)
	sortAsks(asks)
	bids = dropZero(bids)
	asks = dropZero(asks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[tokenID] = &OrderBook{TokenID: tokenID, Bids: bids, Asks: asks, UpdatedAt: ts}
}

// ApplyDelta merges a set of per-level changes into the side they
// target, upserting by price and removing zero-size levels.
func (s *Store) ApplyDelta(tokenID string, side Side, changes []Level, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ob, ok := s.books[tokenID]
	if !ok {
		ob = &OrderBook{TokenID: tokenID}
		s.books[tokenID] = ob
	}

	if side == Bid {
		ob.Bids = mergeLevels(ob.Bids, changes)
		sortBids(ob.Bids)
		ob.Bids = dropZero(ob.Bids)
	} else {
		ob.Asks = mergeLevels(ob.Asks, changes)
		sortAsks(ob.Asks)
		ob.Asks = dropZero(ob.Asks)
	}
	ob.UpdatedAt = ts
}

// IsSnapshotDepth reports whether the supplied level counts exceed the
// heuristic threshold used to distinguish snapshots from deltas on the
// wire.
func IsSnapshotDepth(bidCount, askCount int) bool {
	return bidCount > snapshotLevelThreshold || askCount > snapshotLevelThreshold
}

// Get returns a copy of the stored book for tokenID.
func (s *Store) Get(tokenID string) (OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ob, ok := s.books[tokenID]
	if !ok {
		return OrderBook{}, false
	}
	return *ob, true
}

// TokenIDs returns all tokens currently tracked.
func (s *Store) TokenIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	return ids
}

func mergeLevels(existing []Level, changes []Level) []Level {
	idx := make(map[string]int, len(existing))
	for i, lvl := range existing {
		idx[lvl.Price.String()] = i
	}
	for _, c := range changes {
		key := c.Price.String()
		if i, ok := idx[key]; ok {
			existing[i].Size = c.Size
			continue
		}
		existing = append(existing, c)
		idx[key] = len(existing) - 1
	}
	return existing
}

func dropZero(levels []Level) []Level {
	out := levels[:0]
	for _, l := range levels {
		if l.Size.IsPositive() {
			out = append(out, l)
		}
	}
	return out
}

func sortBids(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.GreaterThan(levels[j].Price) })
}

func sortAsks(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.LessThan(levels[j].Price) })
}

// MarketBooks pairs a YES-token book with a NO-token book, as consumed
// by the spread detector.
type MarketBooks struct {
	Yes OrderBook
	No  OrderBook
}

// MaxAgeMs returns the age, in milliseconds, of the staler of the two
// books relative to now.
func (m MarketBooks) MaxAgeMs(now time.Time) int64 {
	yesAge := now.Sub(m.Yes.UpdatedAt)
	noAge := now.Sub(m.No.UpdatedAt)
	age := yesAge
	if noAge > age {
		age = noAge
	}
	return age.Milliseconds()
}
