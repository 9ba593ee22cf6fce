package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyhft/tradeengine/internal/ledger"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/risk"
)

type mockAppState struct {
	dryRun       bool
	signals      int
	fills        int
	pnl          float64
	positions    map[string]ledger.Position
	riskSnapshot risk.Snapshot
	tradingMode  string
	markets      []market.Market
	stopCalls    []bool
}

func (m *mockAppState) Stats() (int, int, float64)                    { return m.signals, m.fills, m.pnl }
func (m *mockAppState) IsDryRun() bool                                 { return m.dryRun }
func (m *mockAppState) TradingMode() string                           { return m.tradingMode }
func (m *mockAppState) Positions() map[string]ledger.Position         { return m.positions }
func (m *mockAppState) RiskSnapshot() risk.Snapshot                   { return m.riskSnapshot }
func (m *mockAppState) MonitoredMarkets() []market.Market             { return m.markets }
func (m *mockAppState) SetEmergencyStop(stop bool)                    { m.stopCalls = append(m.stopCalls, stop) }

func newTestServer(state *mockAppState) *Server {
	return NewServer("127.0.0.1:0", state)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := newTestServer(&mockAppState{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestHandleStatusReportsEngineState(t *testing.T) {
	state := &mockAppState{
		dryRun:      true,
		tradingMode: "paper",
		signals:     7,
		fills:       3,
		pnl:         12.5,
		markets:     []market.Market{{ConditionID: "c1"}, {ConditionID: "c2"}},
	}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["dry_run"] != true || body["trading_mode"] != "paper" {
		t.Fatalf("unexpected status body: %v", body)
	}
	if body["signals"].(float64) != 7 || body["fills"].(float64) != 3 {
		t.Fatalf("unexpected counters: %v", body)
	}
	if body["markets"].(float64) != 2 {
		t.Fatalf("expected 2 markets, got %v", body["markets"])
	}
}

func TestHandlePositionsSkipsFlatClosedPositions(t *testing.T) {
	state := &mockAppState{
		positions: map[string]ledger.Position{
			"flat": {TokenID: "flat", NetSize: decimal.Zero, RealizedPnL: decimal.Zero},
			"open": {
				TokenID:       "open",
				NetSize:       decimal.NewFromFloat(10),
				AvgEntryPrice: decimal.NewFromFloat(0.4),
				MarkPrice:     decimal.NewFromFloat(0.5),
				RealizedPnL:   decimal.NewFromFloat(2),
				TotalFills:    1,
			},
		},
	}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	entries, ok := body["positions"].([]interface{})
	if !ok || len(entries) != 1 {
		t.Fatalf("expected 1 position, got %v", body)
	}
	entry := entries[0].(map[string]interface{})
	if entry["token_id"] != "open" {
		t.Fatalf("expected token_id=open, got %v", entry)
	}
	if entry["unrealized_pnl"].(float64) <= 0 {
		t.Fatalf("expected positive unrealized pnl, got %v", entry["unrealized_pnl"])
	}
}

func TestHandlePnLSumsRealizedAndUnrealized(t *testing.T) {
	state := &mockAppState{
		pnl: 5,
		positions: map[string]ledger.Position{
			"tok": {
				TokenID:       "tok",
				NetSize:       decimal.NewFromFloat(10),
				AvgEntryPrice: decimal.NewFromFloat(0.4),
				MarkPrice:     decimal.NewFromFloat(0.5),
			},
		},
	}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodGet, "/api/pnl", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["realized_pnl"].(float64) != 5 {
		t.Fatalf("expected realized_pnl=5, got %v", body)
	}
	if body["total_pnl"].(float64) <= body["realized_pnl"].(float64) {
		t.Fatalf("expected total_pnl to include unrealized, got %v", body)
	}
}

func TestHandleRiskReportsSnapshot(t *testing.T) {
	state := &mockAppState{
		riskSnapshot: risk.Snapshot{
			EmergencyStop:        true,
			ConsecutiveLosses:    2,
			MaxConsecutiveLosses: 3,
		},
	}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodGet, "/api/risk", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	body := decodeJSON(t, rec)
	if body["emergency_stop"] != true {
		t.Fatalf("expected emergency_stop=true, got %v", body)
	}
	if body["consecutive_losses"].(float64) != 2 {
		t.Fatalf("unexpected consecutive_losses: %v", body)
	}
}

func TestHandleEmergencyStopRejectsNonPost(t *testing.T) {
	state := &mockAppState{}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodGet, "/api/emergency-stop", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if len(state.stopCalls) != 0 {
		t.Fatalf("expected no SetEmergencyStop call, got %v", state.stopCalls)
	}
}

func TestHandleEmergencyStopEngagesStop(t *testing.T) {
	state := &mockAppState{}
	s := newTestServer(state)
	req := httptest.NewRequest(http.MethodPost, "/api/emergency-stop", strings.NewReader(`{"stop":true}`))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(state.stopCalls) != 1 || !state.stopCalls[0] {
		t.Fatalf("expected a single stop=true call, got %v", state.stopCalls)
	}
}
