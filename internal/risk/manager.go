// Package risk implements pre-trade risk limits: an ordered Allow()
// gate combined with drawdown/daily-loss halt monitoring.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the recognized pre-trade gating options.
type Config struct {
	MaxOpenOrders           int
	MaxDailyLossUSDC        decimal.Decimal
	MaxDailyLossPct         decimal.Decimal
	AccountCapitalUSDC      decimal.Decimal
	MaxPositionPerMarket    decimal.Decimal
	StopLossPerMarket       decimal.Decimal
	MaxConsecutiveLosses    int
	ConsecutiveLossCooldown time.Duration
}

// Snapshot is the manager's gating state at a point in time.
type Snapshot struct {
	EmergencyStop        bool
	DailyPnL             decimal.Decimal
	DailyLossLimitUSDC   decimal.Decimal
	ConsecutiveLosses    int
	InCooldown           bool
	CooldownRemaining    time.Duration
	MaxConsecutiveLosses int
}

// Manager evaluates pre-trade gates in a fixed precedence order.
type Manager struct {
	mu                sync.RWMutex
	cfg               Config
	openOrders        int
	dailyPnL          decimal.Decimal
	positions         map[string]decimal.Decimal // tokenID -> USDC exposure
	emergencyStop     bool
	consecutiveLosses int
	cooldownUntil     time.Time
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, positions: make(map[string]decimal.Decimal)}
}

// Allow evaluates, in order: emergency stop, cooldown, max open
// orders, daily loss limit, per-market position limit.
func (m *Manager) Allow(tokenID string, amountUSDC decimal.Decimal) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.emergencyStop {
		return fmt.Errorf("emergency stop active")
	}
	if m.inCooldownLocked() {
		return fmt.Errorf("loss cooldown active: %.0fs remaining", m.cooldownUntil.Sub(time.Now()).Seconds())
	}
	if m.openOrders >= m.cfg.MaxOpenOrders {
		return fmt.Errorf("max open orders reached: %d/%d", m.openOrders, m.cfg.MaxOpenOrders)
	}
	dailyLossLimit := m.dailyLossLimitLocked()
	if dailyLossLimit.IsPositive() && m.dailyPnL.LessThanOrEqual(dailyLossLimit.Neg()) {
		return fmt.Errorf("daily loss limit reached: %s/%s", m.dailyPnL, dailyLossLimit.Neg())
	}
	pos := m.positions[tokenID]
	if pos.Add(amountUSDC).GreaterThan(m.cfg.MaxPositionPerMarket) {
		return fmt.Errorf("position limit for %s: %s+%s > %s", tokenID, pos, amountUSDC, m.cfg.MaxPositionPerMarket)
	}
	return nil
}

// SetOpenOrders records the current open-order count.
func (m *Manager) SetOpenOrders(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrders = n
}

// RecordPnL accumulates realized PnL toward the daily total.
func (m *Manager) RecordPnL(amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = m.dailyPnL.Add(amount)
}

// AddPosition increases tracked exposure for a token.
func (m *Manager) AddPosition(tokenID string, amountUSDC decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[tokenID] = m.positions[tokenID].Add(amountUSDC)
}

// RemovePosition decreases tracked exposure for a token.
func (m *Manager) RemovePosition(tokenID string, amountUSDC decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[tokenID] = m.positions[tokenID].Sub(amountUSDC)
	if !m.positions[tokenID].IsPositive() {
		delete(m.positions, tokenID)
	}
}

// SetEmergencyStop toggles the hard kill switch.
func (m *Manager) SetEmergencyStop(stop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = stop
}

// EmergencyStop reports whether the kill switch is active.
func (m *Manager) EmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

// DailyPnL returns today's accumulated realized PnL.
func (m *Manager) DailyPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// ResetDaily clears the day's PnL, loss streak and cooldown.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = decimal.Zero
	m.consecutiveLosses = 0
	m.cooldownUntil = time.Time{}
}

// DailyLossLimitUSDC returns the effective daily loss limit after
// capital-pct derivation (the tighter of the absolute and pct limits).
func (m *Manager) DailyLossLimitUSDC() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyLossLimitLocked()
}

// RecordTradeResult updates consecutive-loss state from a realized
// PnL delta and returns true when the loss streak triggers a cooldown.
func (m *Manager) RecordTradeResult(realizedDelta decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if realizedDelta.IsNegative() {
		m.consecutiveLosses++
	} else if realizedDelta.IsPositive() {
		m.consecutiveLosses = 0
	}

	if m.cfg.MaxConsecutiveLosses <= 0 || m.consecutiveLosses < m.cfg.MaxConsecutiveLosses {
		return false
	}

	cooldown := m.cfg.ConsecutiveLossCooldown
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	m.cooldownUntil = time.Now().Add(cooldown)
	return true
}

// ConsecutiveLosses returns the current loss-streak length.
func (m *Manager) ConsecutiveLosses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveLosses
}

// InCooldown reports whether a consecutive-loss cooldown is active.
func (m *Manager) InCooldown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inCooldownLocked()
}

// CooldownRemaining returns the time left in an active cooldown.
func (m *Manager) CooldownRemaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.inCooldownLocked() {
		return 0
	}
	return m.cooldownUntil.Sub(time.Now())
}

// Snapshot returns the manager's current gating state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	remaining := time.Duration(0)
	inCooldown := m.inCooldownLocked()
	if inCooldown {
		remaining = m.cooldownUntil.Sub(time.Now())
	}
	return Snapshot{
		EmergencyStop:        m.emergencyStop,
		DailyPnL:             m.dailyPnL,
		DailyLossLimitUSDC:   m.dailyLossLimitLocked(),
		ConsecutiveLosses:    m.consecutiveLosses,
		InCooldown:           inCooldown,
		CooldownRemaining:    remaining,
		MaxConsecutiveLosses: m.cfg.MaxConsecutiveLosses,
	}
}

func (m *Manager) dailyLossLimitLocked() decimal.Decimal {
	limit := m.cfg.MaxDailyLossUSDC
	if m.cfg.AccountCapitalUSDC.IsPositive() && m.cfg.MaxDailyLossPct.IsPositive() {
		derived := m.cfg.AccountCapitalUSDC.Mul(m.cfg.MaxDailyLossPct)
		if !limit.IsPositive() || derived.LessThan(limit) {
			limit = derived
		}
	}
	return limit
}

func (m *Manager) inCooldownLocked() bool {
	if m.cooldownUntil.IsZero() {
		return false
	}
	return time.Now().Before(m.cooldownUntil)
}
