package risk

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/config"
)

// KillSwitch tracks, per symbol, the §4.1 volatility kill-switch and the
// post-stop-out re-entry cooldown. Both are single-process in-memory
// state guarded by a mutex, the same pattern the spec calls for on the
// sentiment cache (§5: "single-process map ... read-mostly").
type KillSwitch struct {
	mu    sync.Mutex
	state map[string]*symbolState
	cfg   config.RiskConfig
}

type symbolState struct {
	killActiveUntilBar int
	cooldownUntilBar   int
}

// NewKillSwitch creates a kill-switch bound to the live risk config.
func NewKillSwitch(cfg config.RiskConfig) *KillSwitch {
	return &KillSwitch{cfg: cfg, state: make(map[string]*symbolState)}
}

// Evaluate implements §4.1: "compute 5-minute realized volatility over the
// last N bars and compare to the 30-day median of the same measure. If
// σ_5m > 3 × median_30d, set the kill-switch for this symbol for the next
// K bars." The multiplier and K come from RiskConfig.KillSwitchMultiple /
// KillSwitchCooldown. bar is the current cycle's monotonic bar index.
// Returns true the instant the switch trips, so the caller can close any
// open position at the current bar's close.
func (k *KillSwitch) Evaluate(symbol string, vol5m, median30d float64, bar int) bool {
	if median30d <= 0 {
		return false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if vol5m <= k.cfg.KillSwitchMultiple*median30d {
		return false
	}

	s := k.stateForLocked(symbol)
	s.killActiveUntilBar = bar + k.cfg.KillSwitchCooldown
	log.Warn().
		Str("symbol", symbol).
		Float64("vol_5m", vol5m).
		Float64("median_30d", median30d).
		Int("active_until_bar", s.killActiveUntilBar).
		Msg("kill switch tripped")
	return true
}

// Active reports whether the kill-switch is currently open for the symbol,
// rejecting new entries (§4.6).
func (k *KillSwitch) Active(symbol string, bar int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.state[symbol]
	if !ok {
		return false
	}
	return bar < s.killActiveUntilBar
}

// StartCooldown suppresses new entries for RiskConfig.CooldownBars bars
// after a stop-out exit (§4 invariant 4, mirrored in §4.6's "cooldown
// window active" reject condition).
func (k *KillSwitch) StartCooldown(symbol string, bar int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.stateForLocked(symbol)
	s.cooldownUntilBar = bar + k.cfg.CooldownBars
}

// InCooldown reports whether the post-stop-out re-entry cooldown is open.
func (k *KillSwitch) InCooldown(symbol string, bar int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.state[symbol]
	if !ok {
		return false
	}
	return bar < s.cooldownUntilBar
}

// Reset clears all kill-switch and cooldown state for a symbol. Exposed
// for tests and for an operator-triggered manual reset.
func (k *KillSwitch) Reset(symbol string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.state, symbol)
}

func (k *KillSwitch) stateForLocked(symbol string) *symbolState {
	s, ok := k.state[symbol]
	if !ok {
		s = &symbolState{}
		k.state[symbol] = s
	}
	return s
}
