package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllowOrderBasic(t *testing.T) {
	m := New(Config{MaxOpenOrders: 5, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	if err := m.Allow("token-1", decimal.NewFromInt(25)); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestBlockOnMaxOrders(t *testing.T) {
	m := New(Config{MaxOpenOrders: 2, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	m.SetOpenOrders(2)
	if err := m.Allow("token-1", decimal.NewFromInt(25)); err == nil {
		t.Fatal("expected block on max orders")
	}
}

func TestBlockOnDailyLoss(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	m.RecordPnL(decimal.NewFromInt(-101))
	if err := m.Allow("token-1", decimal.NewFromInt(25)); err == nil {
		t.Fatal("expected block on daily loss")
	}
}

func TestBlockOnPositionLimit(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	m.AddPosition("token-1", decimal.NewFromInt(30))
	if err := m.Allow("token-1", decimal.NewFromInt(25)); err == nil {
		t.Fatal("expected block on position limit")
	}
}

func TestEmergencyStop(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	m.SetEmergencyStop(true)
	if err := m.Allow("token-1", decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected block on emergency stop")
	}
}

func TestRecordPnLAndReset(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: decimal.NewFromInt(100), MaxPositionPerMarket: decimal.NewFromInt(50)})
	m.RecordPnL(decimal.NewFromInt(-50))
	m.RecordPnL(decimal.NewFromInt(-40))
	if !m.DailyPnL().Equal(decimal.NewFromInt(-90)) {
		t.Fatalf("expected -90, got %s", m.DailyPnL())
	}
	m.ResetDaily()
	if !m.DailyPnL().IsZero() {
		t.Fatalf("expected 0 after reset, got %s", m.DailyPnL())
	}
}

func TestConsecutiveLossesTriggerCooldown(t *testing.T) {
	m := New(Config{MaxOpenOrders: 20, MaxDailyLossUSDC: decimal.NewFromInt(1000), MaxPositionPerMarket: decimal.NewFromInt(1000), MaxConsecutiveLosses: 3})
	m.RecordTradeResult(decimal.NewFromInt(-1))
	m.RecordTradeResult(decimal.NewFromInt(-1))
	triggered := m.RecordTradeResult(decimal.NewFromInt(-1))
	if !triggered {
		t.Fatal("expected cooldown to trigger on 3rd consecutive loss")
	}
	if !m.InCooldown() {
		t.Error("expected manager to report in-cooldown state")
	}
}

func TestWinResetsConsecutiveLosses(t *testing.T) {
	m := New(Config{MaxConsecutiveLosses: 3})
	m.RecordTradeResult(decimal.NewFromInt(-1))
	m.RecordTradeResult(decimal.NewFromInt(1))
	if m.ConsecutiveLosses() != 0 {
		t.Errorf("expected loss streak reset after a win, got %d", m.ConsecutiveLosses())
	}
}

func TestDailyLossLimitDerivedFromPct(t *testing.T) {
	m := New(Config{
		AccountCapitalUSDC: decimal.NewFromInt(1000),
		MaxDailyLossPct:    decimal.NewFromFloat(0.05),
		MaxDailyLossUSDC:   decimal.NewFromInt(1000), // absolute limit looser than the pct-derived one
	})
	limit := m.DailyLossLimitUSDC()
	if !limit.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected derived limit of 50, got %s", limit)
	}
}
