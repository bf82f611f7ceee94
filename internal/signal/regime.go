// Package signal implements the deterministic rule layer that sits between
// the feature battery and the advisor: regime classification, entry/exit
// predicates, and position sizing (§4.3).
package signal

import "github.com/paper-trader/daemon/internal/db"

// Regime is the market state a symbol is classified into for a cycle.
type Regime string

const (
	RegimeTrend Regime = "trend"
	RegimeChop  Regime = "chop"
)

// ClassifyRegime implements the trend/chop split: trend iff ADX(14) > 20
// and EMA50 > EMA200.
func ClassifyRegime(f db.FeatureRow) Regime {
	if f.ADX14 > 20 && f.EMA50 > f.EMA200 {
		return RegimeTrend
	}
	return RegimeChop
}
