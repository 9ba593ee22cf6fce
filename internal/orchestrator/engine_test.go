package orchestrator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyhft/tradeengine/internal/book"
	"github.com/polyhft/tradeengine/internal/config"
	"github.com/polyhft/tradeengine/internal/feed"
	"github.com/polyhft/tradeengine/internal/lag"
	"github.com/polyhft/tradeengine/internal/ledger"
	"github.com/polyhft/tradeengine/internal/logging"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/risk"
	"github.com/polyhft/tradeengine/internal/spread"
	"github.com/polyhft/tradeengine/internal/transport"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DryRun = true
	cfg.Data.CaptureEnabled = false

	catalog := market.NewHTTPCatalogClient("http://127.0.0.1:0")
	e := New(cfg, logging.Nop(), catalog, transport.DefaultConfig("wss://example.invalid/spot"), transport.DefaultConfig("wss://example.invalid/depth"))
	return e
}

func testMarket() market.Market {
	now := time.Now().UTC()
	return market.Market{
		ConditionID: "cond-1",
		YesTokenID:  "yes-1",
		NoTokenID:   "no-1",
		OpenPrice:   decimal.NewFromFloat(0.5),
		OpenTime:    now.Add(-5 * time.Minute),
		CloseTime:   now.Add(10 * time.Minute),
	}
}

func TestOnNewTokensAndTokenSnapshot(t *testing.T) {
	e := newTestEngine(t)
	e.onNewTokens("cond-1", "yes-1", "no-1")

	snap := e.tokenSnapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 known tokens, got %d", len(snap))
	}
}

func TestTokenSetChanged(t *testing.T) {
	e := newTestEngine(t)

	if e.tokenSetChanged() {
		t.Fatal("expected no change on an empty, unseen baseline of zero")
	}
	e.onNewTokens("cond-1", "yes-1", "no-1")
	if !e.tokenSetChanged() {
		t.Fatal("expected a change after new tokens were discovered")
	}
	if e.tokenSetChanged() {
		t.Fatal("expected no further change once the baseline is recorded")
	}
}

func TestCurrentBankroll(t *testing.T) {
	e := newTestEngine(t)
	initial := e.currentBankroll()
	if !initial.Equal(decimal.NewFromFloat(e.cfg.Risk.InitialBankroll)) {
		t.Fatalf("expected bankroll to equal initial bankroll with no trades, got %s", initial.String())
	}

	e.ledger.Open("yes-1", ledger.Long, decimal.NewFromFloat(0.4), decimal.NewFromInt(10))
	e.ledger.Close("yes-1", decimal.NewFromFloat(0.5), decimal.NewFromInt(10))

	after := e.currentBankroll()
	if !after.GreaterThan(initial) {
		t.Fatalf("expected bankroll to grow after a profitable close, got %s vs initial %s", after.String(), initial.String())
	}
}

func TestCheckDrawdownHaltsOnLargeLoss(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.Risk.MaxDailyLossPct = 0.01
	e.drawdown = risk.NewDrawdownMonitor(decimal.NewFromFloat(e.cfg.Risk.InitialBankroll))

	e.ledger.Open("yes-1", ledger.Long, decimal.NewFromFloat(0.9), decimal.NewFromInt(500))
	e.ledger.Close("yes-1", decimal.NewFromFloat(0.1), decimal.NewFromInt(500))

	e.checkDrawdown()

	if !e.risk.EmergencyStop() {
		t.Fatal("expected emergency stop to engage after a loss past the daily limit")
	}
}

func TestClosePositionAtMarkSkipsUnknownToken(t *testing.T) {
	e := newTestEngine(t)
	e.closePositionAtMark("does-not-exist")

	if _, ok := e.ledger.Position("does-not-exist"); ok {
		t.Fatal("expected no position to be created for an unknown token")
	}
}

func TestClosePositionAtMarkRealizesAtLastBookMid(t *testing.T) {
	e := newTestEngine(t)
	e.ledger.Open("yes-1", ledger.Long, decimal.NewFromFloat(0.4), decimal.NewFromInt(10))
	e.books.ApplySnapshot("yes-1",
		[]book.Level{{Price: decimal.NewFromFloat(0.58), Size: decimal.NewFromInt(100)}},
		[]book.Level{{Price: decimal.NewFromFloat(0.60), Size: decimal.NewFromInt(100)}},
		time.Now().UTC())

	e.closePositionAtMark("yes-1")

	pos, ok := e.ledger.Position("yes-1")
	if !ok {
		t.Fatal("expected position to still be tracked after close")
	}
	if !pos.NetSize.IsZero() {
		t.Fatalf("expected position to be fully closed, net size %s", pos.NetSize.String())
	}
	if e.ledger.TotalPnL().IsZero() {
		t.Fatal("expected nonzero realized pnl from marking at a favorable mid")
	}
}

func TestExecuteLagSignalDryRunNeverFills(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.DryRun = true
	m := testMarket()

	sig := lag.Signal{
		Side:          lag.Yes,
		ActualPrice:   decimal.NewFromFloat(0.5),
		ExpectedPrice: decimal.NewFromFloat(0.7),
		Confidence:    decimal.NewFromFloat(0.8),
	}
	ob := book.OrderBook{
		TokenID: m.YesTokenID,
		Bids:    []book.Level{{Price: decimal.NewFromFloat(0.48), Size: decimal.NewFromInt(100)}},
		Asks:    []book.Level{{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(100)}},
	}

	e.executeLagSignal(m, sig, ob)

	if _, ok := e.ledger.Position(m.YesTokenID); ok {
		t.Fatal("expected no position to be opened in dry-run mode")
	}
	if e.totalFills != 0 {
		t.Fatalf("expected zero fills in dry-run mode, got %d", e.totalFills)
	}
	if e.totalSignals != 1 {
		t.Fatalf("expected the signal to still be counted, got %d", e.totalSignals)
	}
}

func TestExecuteLagSignalSkipsWhenAmountNonPositive(t *testing.T) {
	e := newTestEngine(t)
	m := testMarket()

	sig := lag.Signal{
		Side:          lag.Yes,
		ActualPrice:   decimal.NewFromFloat(0.5),
		ExpectedPrice: decimal.NewFromFloat(0.5),
		Confidence:    decimal.Zero,
	}
	ob := book.OrderBook{TokenID: m.YesTokenID}

	e.executeLagSignal(m, sig, ob)

	if e.totalFills != 0 {
		t.Fatalf("expected zero fills when sizing produces a non-positive amount, got %d", e.totalFills)
	}
}

func TestExecuteSpreadSignalDryRunNeverFills(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.DryRun = true
	m := testMarket()

	sig := spread.Signal{
		Market:     m,
		YesPrice:   decimal.NewFromFloat(0.46),
		NoPrice:    decimal.NewFromFloat(0.46),
		ProfitPct:  decimal.NewFromFloat(0.08),
		SizePerLeg: decimal.NewFromInt(5),
	}

	e.executeSpreadSignal(m, sig)

	if _, ok := e.ledger.Position(m.YesTokenID); ok {
		t.Fatal("expected no yes-leg position to be opened in dry-run mode")
	}
	if _, ok := e.ledger.Position(m.NoTokenID); ok {
		t.Fatal("expected no no-leg position to be opened in dry-run mode")
	}
	if e.totalFills != 0 {
		t.Fatalf("expected zero fills in dry-run mode, got %d", e.totalFills)
	}
}

func TestHandleDepthUpdateAppliesSnapshot(t *testing.T) {
	e := newTestEngine(t)

	e.handleDepthUpdate(feed.Update{
		TokenID:   "yes-1",
		Snapshot:  true,
		Bids:      []book.Level{{Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(10)}},
		Asks:      []book.Level{{Price: decimal.NewFromFloat(0.52), Size: decimal.NewFromInt(10)}},
		Timestamp: time.Now().UTC(),
	})

	ob, ok := e.books.Get("yes-1")
	if !ok {
		t.Fatal("expected book to be stored after snapshot update")
	}
	if len(ob.Bids) != 1 || len(ob.Asks) != 1 {
		t.Fatalf("expected one bid and one ask level, got %d bids %d asks", len(ob.Bids), len(ob.Asks))
	}
}

func TestHandleTickUpdatesVolatilityState(t *testing.T) {
	e := newTestEngine(t)

	base := time.Now().UTC()
	e.handleTick(feed.PriceTick{Symbol: "BTCUSDT", Price: decimal.NewFromFloat(50000), LocalTS: base, ExchangeTS: base})
	e.handleTick(feed.PriceTick{Symbol: "BTCUSDT", Price: decimal.NewFromFloat(50100), LocalTS: base.Add(time.Second), ExchangeTS: base.Add(time.Second)})

	if e.vol.SampleCount() == 0 {
		t.Fatal("expected volatility estimator to have observed samples")
	}
}

func TestEvaluateMarketExecutesLagSignalWhenDetected(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.DryRun = false
	m := testMarket()
	now := time.Now().UTC()

	e.books.ApplySnapshot(m.YesTokenID,
		[]book.Level{{Price: decimal.NewFromFloat(0.30), Size: decimal.NewFromInt(1000)}},
		[]book.Level{{Price: decimal.NewFromFloat(0.32), Size: decimal.NewFromInt(1000)}},
		now)

	for i := 0; i < 20; i++ {
		ts := now.Add(-time.Duration(20-i) * time.Second)
		e.momentum.Update(ts, decimal.NewFromFloat(50000+float64(i)*50))
	}

	e.evaluateMarket(m, feed.PriceTick{Symbol: "BTCUSDT", Price: decimal.NewFromFloat(51000), ExchangeTS: now})

	// Whatever the detectors decide, evaluateMarket must not panic and
	// must leave the engine in a consistent state either way.
	if e.totalSignals < 0 {
		t.Fatal("signal counter should never go negative")
	}
}
