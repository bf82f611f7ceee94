package orchestrator

import (
	"fmt"
	"math"
	"sort"

	"github.com/paper-trader/daemon/internal/db"
)

// killSwitchVolWindowBars is the "last N bars" window the §4.1 kill-switch
// trips on: one hour of 5-minute bars. Spec.md leaves N unspecified; 12
// bars gives the statistic enough samples to not be dominated by a single
// print while still reacting within the same hour a shock happens.
const killSwitchVolWindowBars = 12

// killSwitchLookbackDays is the trailing window the 30-day median baseline
// is computed over (§4.1: "30-day median of the same measure").
const killSwitchLookbackDays = 30

// timeframeMinutes maps the daemon's timeframe vocabulary onto its bar
// length in minutes, the unit realizedVol and medianDailyVol bucket by.
func timeframeMinutes(timeframe string) (int, error) {
	switch timeframe {
	case "1m":
		return 1, nil
	case "3m":
		return 3, nil
	case "5m":
		return 5, nil
	case "15m":
		return 15, nil
	case "30m":
		return 30, nil
	case "1h":
		return 60, nil
	case "2h":
		return 120, nil
	case "4h":
		return 240, nil
	case "6h":
		return 360, nil
	case "8h":
		return 480, nil
	case "12h":
		return 720, nil
	case "1d":
		return 1440, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
}

// realizedVol returns the population standard deviation of close-to-close
// percent returns over the trailing window bars of candles (ascending ts
// order expected). Fewer than two usable bars yields 0, "no signal" rather
// than a divide-by-zero.
func realizedVol(candles []db.Candle, window int) float64 {
	if window < 2 || len(candles) < 2 {
		return 0
	}
	if len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	return stdev(returns)
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// medianDailyVol buckets candles into UTC calendar days and computes
// realizedVol over the trailing `window` bars of each day, returning the
// median across days. Days with fewer than window+1 bars are skipped. When
// no day has window+1 bars the result is 0, which KillSwitch.Evaluate treats
// as "no baseline, never trip"; otherwise the median is taken over however
// many days qualify, even a single one.
func medianDailyVol(candles []db.Candle, window int) float64 {
	byDay := make(map[int][]db.Candle)
	var order []int
	for _, c := range candles {
		key := c.Ts.UTC().Year()*1000 + c.Ts.UTC().YearDay()
		if _, ok := byDay[key]; !ok {
			order = append(order, key)
		}
		byDay[key] = append(byDay[key], c)
	}

	var vols []float64
	for _, key := range order {
		day := byDay[key]
		if len(day) < window+1 {
			continue
		}
		vols = append(vols, realizedVol(day, window))
	}
	if len(vols) == 0 {
		return 0
	}

	sort.Float64s(vols)
	mid := len(vols) / 2
	if len(vols)%2 == 1 {
		return vols[mid]
	}
	return (vols[mid-1] + vols[mid]) / 2
}

// killSwitchInputs computes the (vol5m, median30d) pair KillSwitch.Evaluate
// compares, from a symbol's recent candle history. The median is taken over
// the days the history covers; with fewer days than killSwitchLookbackDays it
// is the median of those days, and it is 0 (never trips the switch) only when
// no day has more than killSwitchVolWindowBars bars.
func killSwitchInputs(history []db.Candle) (vol5m, median30d float64) {
	return realizedVol(history, killSwitchVolWindowBars), medianDailyVol(history, killSwitchVolWindowBars)
}
