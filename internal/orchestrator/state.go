package orchestrator

import (
	"github.com/polyhft/tradeengine/internal/ledger"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/risk"
)

// Stats returns running totals for the dashboard's status endpoint.
func (e *Engine) Stats() (signals int, fills int, pnl float64) {
	p, _ := e.ledger.TotalPnL().Float64()
	return e.totalSignals, e.totalFills, p
}

// IsDryRun reports whether the engine is configured to simulate
// rather than execute.
func (e *Engine) IsDryRun() bool {
	return e.cfg.DryRun
}

// TradingMode returns the configured execution mode ("paper" or
// "live").
func (e *Engine) TradingMode() string {
	return e.cfg.Execution.Mode
}

// Positions returns a snapshot of every tracked position, keyed by
// token ID.
func (e *Engine) Positions() map[string]ledger.Position {
	return e.ledger.Positions()
}

// RiskSnapshot returns the risk manager's current gating state.
func (e *Engine) RiskSnapshot() risk.Snapshot {
	return e.risk.Snapshot()
}

// MonitoredMarkets returns the markets currently in the trading
// window.
func (e *Engine) MonitoredMarkets() []market.Market {
	return e.directory.Snapshot()
}

// SetEmergencyStop toggles the risk manager's hard kill switch,
// exposed so the dashboard's operator control can engage it.
func (e *Engine) SetEmergencyStop(stop bool) {
	e.risk.SetEmergencyStop(stop)
}
