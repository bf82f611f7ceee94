// Package indicators computes the technical indicator series used to build
// a symbol's feature row (§3 feature model). Every function is pure: given
// the same candle series it returns the same output every time, so a replay
// over a stored candle history reproduces the exact feature rows that were
// persisted live.
package indicators

import "math"

// EMA returns the exponential moving average series for period n. Bars
// before the series has n closes carry the seed simple average.
func EMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || n <= 0 {
		return out
	}
	k := 2.0 / float64(n+1)
	var seed float64
	for i := range values {
		if i < n {
			seed += values[i]
			out[i] = seed / float64(i+1)
			continue
		}
		if i == n {
			seed = seed / float64(n)
			out[i] = values[i]*k + seed*(1-k)
			continue
		}
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// HMA returns the Hull Moving Average series, which reacts faster than a
// plain EMA/SMA while keeping the line smooth.
func HMA(values []float64, n int) []float64 {
	if n <= 1 {
		return wma(values, maxInt(n, 1))
	}
	wmaFull := wma(values, n)
	wmaHalf := wma(values, n/2)
	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = 2*wmaHalf[i] - wmaFull[i]
	}
	sqrtN := int(math.Round(math.Sqrt(float64(n))))
	return wma(diff, maxInt(sqrtN, 1))
}

func wma(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		var sum, weightSum float64
		weight := 1.0
		for j := start; j <= i; j++ {
			sum += values[j] * weight
			weightSum += weight
			weight++
		}
		if weightSum > 0 {
			out[i] = sum / weightSum
		}
	}
	return out
}

// RSI returns the Relative Strength Index series (Wilder smoothing).
func RSI(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < 2 || n <= 0 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= n {
			avgGain += gain
			avgLoss += loss
			if i == n {
				avgGain /= float64(n)
				avgLoss /= float64(n)
				out[i] = rsiFromAvg(avgGain, avgLoss)
			}
			continue
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// StochRSI returns the Stochastic RSI series: RSI normalized against its
// own rolling min/max over lookback n.
func StochRSI(closes []float64, n int) []float64 {
	rsi := RSI(closes, n)
	out := make([]float64, len(rsi))
	for i := range rsi {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		lo, hi := rsi[start], rsi[start]
		for j := start; j <= i; j++ {
			if rsi[j] < lo {
				lo = rsi[j]
			}
			if rsi[j] > hi {
				hi = rsi[j]
			}
		}
		if hi-lo > 0 {
			out[i] = (rsi[i] - lo) / (hi - lo)
		}
	}
	return out
}

// ROC returns the rate-of-change series over n bars, in percent.
func ROC(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i-n < 0 || closes[i-n] == 0 {
			continue
		}
		out[i] = (closes[i] - closes[i-n]) / closes[i-n] * 100
	}
	return out
}

// TrueRange returns the per-bar true range series.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		if i == 0 {
			out[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR returns the Average True Range series (Wilder smoothing), period n.
func ATR(high, low, close []float64, n int) []float64 {
	tr := TrueRange(high, low, close)
	return wilderSmooth(tr, n)
}

func wilderSmooth(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if n <= 0 || len(values) == 0 {
		return out
	}
	var sum float64
	for i := range values {
		if i < n {
			sum += values[i]
			out[i] = sum / float64(i+1)
			continue
		}
		if i == n {
			out[i] = sum / float64(n)
			continue
		}
		out[i] = (out[i-1]*float64(n-1) + values[i]) / float64(n)
	}
	return out
}

// BollingerBands returns the lower, mid (SMA), and upper bands for period n
// and width stdDevMultiple standard deviations.
func BollingerBands(closes []float64, n int, stdDevMultiple float64) (lower, mid, upper []float64) {
	mid = sma(closes, n)
	lower = make([]float64, len(closes))
	upper = make([]float64, len(closes))
	for i := range closes {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		window := closes[start : i+1]
		sd := stdDev(window, mid[i])
		lower[i] = mid[i] - stdDevMultiple*sd
		upper[i] = mid[i] + stdDevMultiple*sd
	}
	return lower, mid, upper
}

func sma(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i := range values {
		sum += values[i]
		if i >= n {
			sum -= values[i-n]
		}
		window := n
		if i+1 < n {
			window = i + 1
		}
		out[i] = sum / float64(window)
	}
	return out
}

func stdDev(window []float64, mean float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(window)))
}

// DonchianChannel returns the rolling lower/upper channel over n bars.
func DonchianChannel(high, low []float64, n int) (lower, upper []float64) {
	lower = make([]float64, len(high))
	upper = make([]float64, len(high))
	for i := range high {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		lo, hi := low[start], high[start]
		for j := start; j <= i; j++ {
			if low[j] < lo {
				lo = low[j]
			}
			if high[j] > hi {
				hi = high[j]
			}
		}
		lower[i], upper[i] = lo, hi
	}
	return lower, upper
}

// OBV returns the On-Balance Volume series.
func OBV(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			out[i] = volumes[i]
			continue
		}
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// CMF returns the Chaikin Money Flow series over n bars.
func CMF(high, low, close, volume []float64, n int) []float64 {
	mfv := make([]float64, len(high))
	for i := range high {
		rng := high[i] - low[i]
		if rng == 0 {
			continue
		}
		mult := ((close[i] - low[i]) - (high[i] - close[i])) / rng
		mfv[i] = mult * volume[i]
	}
	out := make([]float64, len(high))
	for i := range high {
		start := i - n + 1
		if start < 0 {
			start = 0
		}
		var mfvSum, volSum float64
		for j := start; j <= i; j++ {
			mfvSum += mfv[j]
			volSum += volume[j]
		}
		if volSum != 0 {
			out[i] = mfvSum / volSum
		}
	}
	return out
}

// ADX returns the Average Directional Index series over n bars, via the
// Wilder +DI/-DI smoothing.
func ADX(high, low, close []float64, n int) []float64 {
	out := make([]float64, len(high))
	if len(high) < 2 {
		return out
	}
	plusDM := make([]float64, len(high))
	minusDM := make([]float64, len(high))
	for i := 1; i < len(high); i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}
	tr := TrueRange(high, low, close)
	smoothTR := wilderSmooth(tr, n)
	smoothPlusDM := wilderSmooth(plusDM, n)
	smoothMinusDM := wilderSmooth(minusDM, n)

	dx := make([]float64, len(high))
	for i := range high {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}
	return wilderSmooth(dx, n)
}

// RVOL returns the relative-volume series: current bar volume divided by
// the trailing n-bar average volume (excluding the current bar).
func RVOL(volumes []float64, n int) []float64 {
	out := make([]float64, len(volumes))
	for i := range volumes {
		start := i - n
		if start < 0 {
			start = 0
		}
		end := i
		if end <= start {
			continue
		}
		var sum float64
		for j := start; j < end; j++ {
			sum += volumes[j]
		}
		avg := sum / float64(end-start)
		if avg > 0 {
			out[i] = volumes[i] / avg
		}
	}
	return out
}

// SessionVWAP returns the volume-weighted average price series, resetting
// its accumulator at each entry in sessionStart (true marks a new session's
// first bar, e.g. a UTC day boundary).
func SessionVWAP(high, low, close, volume []float64, sessionStart []bool) []float64 {
	out := make([]float64, len(high))
	var cumPV, cumVol float64
	for i := range high {
		if i < len(sessionStart) && sessionStart[i] {
			cumPV, cumVol = 0, 0
		}
		typical := (high[i] + low[i] + close[i]) / 3
		cumPV += typical * volume[i]
		cumVol += volume[i]
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out
}

// AVWAP returns the anchored VWAP series computed from anchorIdx (inclusive)
// through the end of the series; bars before the anchor are zero.
func AVWAP(high, low, close, volume []float64, anchorIdx int) []float64 {
	out := make([]float64, len(high))
	var cumPV, cumVol float64
	for i := range high {
		if i < anchorIdx {
			continue
		}
		typical := (high[i] + low[i] + close[i]) / 3
		cumPV += typical * volume[i]
		cumVol += volume[i]
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
