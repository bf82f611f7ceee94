package signal

import (
	"github.com/paper-trader/daemon/internal/db"
)

// ExitReason is the action code recorded against a closed trade (§3, §5
// action-code vocabulary).
type ExitReason string

const (
	ExitReasonStop ExitReason = "EXIT_STOP"
	ExitReasonTime ExitReason = "EXIT_TIME"
)

// ExitDecision is the outcome of evaluating a position's exit predicates
// for the current bar, in priority order: stop-hit, then time-stop. A
// trailing-stop update that doesn't close the position is reported via
// UpdatedStop with Exit left false.
type ExitDecision struct {
	Exit        bool
	Reason      ExitReason
	UpdatedStop float64
}

// EvaluateExit runs the exit predicates, in priority order, for an open
// position against the latest candle and its age in bars. maxHoldBars is
// the advisor-proposed time-stop (spec default 40).
func EvaluateExit(pos db.Position, candle db.Candle, atr14 float64, barsHeld, maxHoldBars int) ExitDecision {
	sign := pos.Side.SideSign()

	stopHit := (sign > 0 && candle.Low <= pos.Stop) || (sign < 0 && candle.High >= pos.Stop)
	if stopHit {
		return ExitDecision{Exit: true, Reason: ExitReasonStop, UpdatedStop: pos.Stop}
	}

	if barsHeld >= maxHoldBars {
		return ExitDecision{Exit: true, Reason: ExitReasonTime, UpdatedStop: pos.Stop}
	}

	newStop := TrailingStop(pos, candle, atr14)
	return ExitDecision{Exit: false, UpdatedStop: newStop}
}

// TrailingStop ratchets a position's stop toward price using a 2x ATR
// trail; the stop only ever moves in the position's favor.
func TrailingStop(pos db.Position, candle db.Candle, atr14 float64) float64 {
	sign := pos.Side.SideSign()
	trail := 2 * atr14
	if sign > 0 {
		candidate := candle.Close - trail
		if candidate > pos.Stop {
			return candidate
		}
		return pos.Stop
	}
	candidate := candle.Close + trail
	if candidate < pos.Stop {
		return candidate
	}
	return pos.Stop
}

// CooldownBars is the number of bars a symbol is blocked from re-entry
// after a position closes (§4.3).
const CooldownBars = 3

// InCooldown reports whether a symbol is still inside its post-exit
// cooldown window, counted in closed bars since the exit.
func InCooldown(barsSinceExit int) bool {
	return barsSinceExit < CooldownBars
}

// DefaultMaxHoldBars is the time-stop used when the advisor proposal omits
// one (§4.3: time-stop at 40 bars).
const DefaultMaxHoldBars = 40
