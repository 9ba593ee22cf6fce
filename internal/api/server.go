// Package api is a lightweight HTTP dashboard for the trading engine,
// exposing the handful of endpoints the engine's own state can back.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/polyhft/tradeengine/internal/ledger"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/risk"
)

// AppState exposes the engine's state for the API layer. orchestrator.Engine
// satisfies this directly.
type AppState interface {
	Stats() (signals int, fills int, pnl float64)
	IsDryRun() bool
	TradingMode() string
	Positions() map[string]ledger.Position
	RiskSnapshot() risk.Snapshot
	MonitoredMarkets() []market.Market
	SetEmergencyStop(stop bool)
}

// Server is a lightweight HTTP API for the trading dashboard.
type Server struct {
	httpServer *http.Server
	appState   AppState
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, appState AppState) *Server {
	s := &Server{
		appState:  appState,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/pnl", s.handlePnL)
	mux.HandleFunc("/api/markets", s.handleMarkets)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/emergency-stop", s.handleEmergencyStop)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status — overall engine status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	signals, fills, pnl := s.appState.Stats()
	s.writeJSON(w, map[string]interface{}{
		"dry_run":      s.appState.IsDryRun(),
		"trading_mode": s.appState.TradingMode(),
		"uptime_s":     time.Since(s.startedAt).Seconds(),
		"signals":      signals,
		"fills":        fills,
		"realized_pnl": pnl,
		"markets":      len(s.appState.MonitoredMarkets()),
	})
}

// GET /api/positions — current tracked positions.
func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	positions := s.appState.Positions()
	type positionEntry struct {
		TokenID       string  `json:"token_id"`
		NetSize       float64 `json:"net_size"`
		AvgEntryPrice float64 `json:"avg_entry_price"`
		RealizedPnL   float64 `json:"realized_pnl"`
		UnrealizedPnL float64 `json:"unrealized_pnl"`
		TotalFills    int     `json:"total_fills"`
	}
	entries := make([]positionEntry, 0, len(positions))
	for id, p := range positions {
		if p.NetSize.IsZero() && p.RealizedPnL.IsZero() {
			continue
		}
		netSize, _ := p.NetSize.Float64()
		avgEntry, _ := p.AvgEntryPrice.Float64()
		realized, _ := p.RealizedPnL.Float64()
		unrealized, _ := p.UnrealizedPnL().Float64()
		entries = append(entries, positionEntry{
			TokenID:       id,
			NetSize:       netSize,
			AvgEntryPrice: avgEntry,
			RealizedPnL:   realized,
			UnrealizedPnL: unrealized,
			TotalFills:    p.TotalFills,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TokenID < entries[j].TokenID })
	s.writeJSON(w, map[string]interface{}{"positions": entries})
}

// GET /api/pnl — realized + unrealized PnL across all tracked positions.
func (s *Server) handlePnL(w http.ResponseWriter, _ *http.Request) {
	_, _, realized := s.appState.Stats()
	var unrealized float64
	for _, p := range s.appState.Positions() {
		u, _ := p.UnrealizedPnL().Float64()
		unrealized += u
	}
	s.writeJSON(w, map[string]interface{}{
		"realized_pnl":   realized,
		"unrealized_pnl": unrealized,
		"total_pnl":      realized + unrealized,
	})
}

// GET /api/markets — markets currently inside the trading window.
func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	markets := s.appState.MonitoredMarkets()
	type marketEntry struct {
		ConditionID string    `json:"condition_id"`
		YesTokenID  string    `json:"yes_token_id"`
		NoTokenID   string    `json:"no_token_id"`
		OpenTime    time.Time `json:"open_time"`
		CloseTime   time.Time `json:"close_time"`
	}
	entries := make([]marketEntry, 0, len(markets))
	for _, m := range markets {
		entries = append(entries, marketEntry{
			ConditionID: m.ConditionID,
			YesTokenID:  m.YesTokenID,
			NoTokenID:   m.NoTokenID,
			OpenTime:    m.OpenTime,
			CloseTime:   m.CloseTime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ConditionID < entries[j].ConditionID })
	s.writeJSON(w, map[string]interface{}{"markets": entries})
}

// GET /api/risk — the risk manager's current gating state.
func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request) {
	snap := s.appState.RiskSnapshot()
	dailyPnL, _ := snap.DailyPnL.Float64()
	dailyLimit, _ := snap.DailyLossLimitUSDC.Float64()
	s.writeJSON(w, map[string]interface{}{
		"emergency_stop":          snap.EmergencyStop,
		"daily_pnl":               dailyPnL,
		"daily_loss_limit_usdc":   dailyLimit,
		"consecutive_losses":      snap.ConsecutiveLosses,
		"max_consecutive_losses":  snap.MaxConsecutiveLosses,
		"in_cooldown":             snap.InCooldown,
		"cooldown_remaining_s":    snap.CooldownRemaining.Seconds(),
	})
}

// POST /api/emergency-stop — engage or release the hard kill switch.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Stop bool `json:"stop"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.appState.SetEmergencyStop(body.Stop)
	s.writeJSON(w, map[string]interface{}{"emergency_stop": body.Stop})
}
