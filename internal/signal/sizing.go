package signal

import (
	"fmt"
	"math"

	"github.com/paper-trader/daemon/internal/db"
)

// RiskPerTrade is the fraction of NAV risked on the distance between entry
// and stop for a single trade (§4.3).
const RiskPerTrade = 0.005

// MaxExposurePct is the hard cap on a single position's notional value as
// a fraction of NAV (§4.3).
const MaxExposurePct = 0.02

// SizePosition computes the quantity for a new position so that a stop-out
// loses exactly RiskPerTrade of NAV, then clamps the resulting notional to
// MaxExposurePct of NAV.
func SizePosition(side db.PositionSide, nav, entry, stop float64) (float64, error) {
	sign := side.SideSign()
	denom := sign * (entry - stop)
	if denom <= 0 {
		return 0, fmt.Errorf("invalid stop distance: side=%s entry=%.8f stop=%.8f", side, entry, stop)
	}

	qty := (RiskPerTrade * nav) / denom

	maxNotional := MaxExposurePct * nav
	if notional := qty * entry; notional > maxNotional {
		qty = maxNotional / entry
	}

	return math.Abs(qty), nil
}
