package orchestrator

import (
	"testing"
	"time"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candlesAt(start time.Time, step time.Duration, closes []float64) []db.Candle {
	out := make([]db.Candle, len(closes))
	for i, c := range closes {
		out[i] = db.Candle{Ts: start.Add(time.Duration(i) * step), Close: c}
	}
	return out
}

func TestTimeframeMinutes(t *testing.T) {
	mins, err := timeframeMinutes("5m")
	require.NoError(t, err)
	assert.Equal(t, 5, mins)

	mins, err = timeframeMinutes("1d")
	require.NoError(t, err)
	assert.Equal(t, 1440, mins)

	_, err = timeframeMinutes("7m")
	assert.Error(t, err)
}

func TestRealizedVolConstantSeriesIsZero(t *testing.T) {
	candles := candlesAt(time.Now(), 5*time.Minute, []float64{100, 100, 100, 100, 100})
	assert.Equal(t, 0.0, realizedVol(candles, 12))
}

func TestRealizedVolTooFewBarsIsZero(t *testing.T) {
	candles := candlesAt(time.Now(), 5*time.Minute, []float64{100})
	assert.Equal(t, 0.0, realizedVol(candles, 12))
}

func TestRealizedVolTruncatesToWindow(t *testing.T) {
	base := time.Now()
	noisy := candlesAt(base, 5*time.Minute, []float64{100, 150, 80, 140, 90})
	flat := candlesAt(base.Add(25*time.Minute), 5*time.Minute, []float64{100, 100, 100})
	all := append(append([]db.Candle{}, noisy...), flat...)

	// a 3-bar window only sees the trailing flat run, so volatility is zero
	// even though the full history is noisy.
	assert.Equal(t, 0.0, realizedVol(all, 3))
	assert.Greater(t, realizedVol(all, len(all)), 0.0)
}

func TestMedianDailyVolSkipsShortDays(t *testing.T) {
	day1 := candlesAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute,
		[]float64{100, 105, 98, 110, 95, 108, 100, 103, 99, 101, 104, 97, 102})
	day2 := candlesAt(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 5*time.Minute,
		[]float64{200, 201}) // too short for a 12-bar window, must be skipped

	median := medianDailyVol(append(day1, day2...), 12)
	assert.Equal(t, realizedVol(day1, 12), median)
}

func TestMedianDailyVolEmptyHistoryIsZero(t *testing.T) {
	assert.Equal(t, 0.0, medianDailyVol(nil, 12))
}

func TestKillSwitchInputsPairsBothStatistics(t *testing.T) {
	candles := candlesAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute,
		[]float64{100, 105, 98, 110, 95, 108, 100, 103, 99, 101, 104, 97, 102})
	vol5m, median30d := killSwitchInputs(candles)
	assert.Equal(t, realizedVol(candles, killSwitchVolWindowBars), vol5m)
	assert.Equal(t, medianDailyVol(candles, killSwitchVolWindowBars), median30d)
}
