package signal

import "github.com/paper-trader/daemon/internal/db"

// EntryCandidate describes a symbol that has tripped the long-entry rule
// on the latest closed bar, the trigger the advisor is asked to evaluate.
type EntryCandidate struct {
	Symbol string
	Side   db.PositionSide
}

// LongEntryTriggered implements the spec's entry rule: close breaks above
// the 20-bar Donchian upper channel, CMF(20) confirms buying pressure, and
// volume is running hot relative to its 20-bar average.
func LongEntryTriggered(candle db.Candle, f db.FeatureRow) bool {
	return candle.Close > f.DonchianUpper && f.CMF20 > 0 && f.RVOL20 > 1.5
}

// ShortEntryTriggered is the mirrored breakdown rule, gated by config since
// §4.3 marks short entries optional: close breaks below the Donchian lower
// channel, CMF(20) confirms distribution, volume confirms.
func ShortEntryTriggered(candle db.Candle, f db.FeatureRow) bool {
	return candle.Close < f.DonchianLower && f.CMF20 < 0 && f.RVOL20 > 1.5
}
