package signal

import (
	"testing"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRegime(t *testing.T) {
	assert.Equal(t, RegimeTrend, ClassifyRegime(db.FeatureRow{ADX14: 25, EMA50: 110, EMA200: 100}))
	assert.Equal(t, RegimeChop, ClassifyRegime(db.FeatureRow{ADX14: 15, EMA50: 110, EMA200: 100}))
	assert.Equal(t, RegimeChop, ClassifyRegime(db.FeatureRow{ADX14: 25, EMA50: 90, EMA200: 100}))
}

func TestLongEntryTriggered(t *testing.T) {
	f := db.FeatureRow{DonchianUpper: 100, CMF20: 0.1, RVOL20: 2.0}
	assert.True(t, LongEntryTriggered(db.Candle{Close: 101}, f))
	assert.False(t, LongEntryTriggered(db.Candle{Close: 99}, f))

	fNoVol := db.FeatureRow{DonchianUpper: 100, CMF20: 0.1, RVOL20: 1.0}
	assert.False(t, LongEntryTriggered(db.Candle{Close: 101}, fNoVol))
}

func TestSizePositionRespectsRiskAndExposureCap(t *testing.T) {
	qty, err := SizePosition(db.PositionSideLong, 100000, 100, 95)
	require.NoError(t, err)
	// unclamped: (0.005*100000)/(100-95) = 100
	assert.InDelta(t, 100.0, qty, 1e-9)

	// tight stop would blow past the exposure cap, so it clamps.
	qty, err = SizePosition(db.PositionSideLong, 100000, 100, 99.99)
	require.NoError(t, err)
	maxQty := (MaxExposurePct * 100000) / 100
	assert.InDelta(t, maxQty, qty, 1e-6)
}

func TestSizePositionRejectsInvalidStop(t *testing.T) {
	_, err := SizePosition(db.PositionSideLong, 100000, 100, 105)
	assert.Error(t, err)
}

func TestEvaluateExitStopTakesPriorityOverTimeStop(t *testing.T) {
	pos := db.Position{Side: db.PositionSideLong, Stop: 95}
	candle := db.Candle{Low: 94, Close: 94.5}
	d := EvaluateExit(pos, candle, 1.0, 100, 40)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitReasonStop, d.Reason)
}

func TestEvaluateExitTimeStop(t *testing.T) {
	pos := db.Position{Side: db.PositionSideLong, Stop: 50}
	candle := db.Candle{Low: 99, Close: 100}
	d := EvaluateExit(pos, candle, 1.0, 40, 40)
	assert.True(t, d.Exit)
	assert.Equal(t, ExitReasonTime, d.Reason)
}

func TestEvaluateExitTrailsStopWithoutClosing(t *testing.T) {
	pos := db.Position{Side: db.PositionSideLong, Stop: 90}
	candle := db.Candle{Low: 99, Close: 100}
	d := EvaluateExit(pos, candle, 1.0, 5, 40)
	assert.False(t, d.Exit)
	assert.InDelta(t, 98.0, d.UpdatedStop, 1e-9)
}

func TestTrailingStopNeverMovesAgainstPosition(t *testing.T) {
	pos := db.Position{Side: db.PositionSideLong, Stop: 100}
	candle := db.Candle{Close: 95}
	stop := TrailingStop(pos, candle, 1.0)
	assert.Equal(t, 100.0, stop, "a pullback must never lower the trailing stop")
}

func TestInCooldown(t *testing.T) {
	assert.True(t, InCooldown(0))
	assert.True(t, InCooldown(2))
	assert.False(t, InCooldown(3))
	assert.False(t, InCooldown(10))
}

func TestSideSign(t *testing.T) {
	assert.Equal(t, 1.0, db.PositionSideLong.SideSign())
	assert.Equal(t, -1.0, db.PositionSideShort.SideSign())
}
