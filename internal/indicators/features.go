package indicators

import (
	"time"

	"github.com/paper-trader/daemon/internal/db"
)

// BuildFeatureRows computes the full feature set over a candle series and
// returns one FeatureRow per candle, keyed identically to its source candle
// (§3). The series must be in ascending ts order and belong to a single
// symbol/timeframe.
func BuildFeatureRows(candles []db.Candle) []db.FeatureRow {
	n := len(candles)
	if n == 0 {
		return nil
	}

	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	sessionStart := make([]bool, n)
	var lastDay int
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
		day := c.Ts.UTC().YearDay() + c.Ts.UTC().Year()*1000
		if i == 0 || day != lastDay {
			sessionStart[i] = true
		}
		lastDay = day
	}

	ema50 := EMA(closes, 50)
	ema200 := EMA(closes, 200)
	hma := HMA(closes, 20)
	rsi14 := RSI(closes, 14)
	stochRSI := StochRSI(closes, 14)
	roc10 := ROC(closes, 10)
	atr14 := ATR(highs, lows, closes, 14)
	bbLower, bbMid, bbUpper := BollingerBands(closes, 20, 2.0)
	donLower, donUpper := DonchianChannel(highs, lows, 20)
	obv := OBV(closes, volumes)
	cmf20 := CMF(highs, lows, closes, volumes, 20)
	adx14 := ADX(highs, lows, closes, 14)
	rvol20 := RVOL(volumes, 20)
	sessionVWAP := SessionVWAP(highs, lows, closes, volumes, sessionStart)
	avwap := AVWAP(highs, lows, closes, volumes, 0)

	rows := make([]db.FeatureRow, n)
	for i, c := range candles {
		rows[i] = db.FeatureRow{
			Symbol:        c.Symbol,
			Timeframe:     c.Timeframe,
			Ts:            c.Ts,
			EMA50:         ema50[i],
			EMA200:        ema200[i],
			HMA:           hma[i],
			RSI14:         rsi14[i],
			StochRSI:      stochRSI[i],
			ROC10:         roc10[i],
			ATR14:         atr14[i],
			BBLower:       bbLower[i],
			BBMid:         bbMid[i],
			BBUpper:       bbUpper[i],
			DonchianLower: donLower[i],
			DonchianUpper: donUpper[i],
			OBV:           obv[i],
			CMF20:         cmf20[i],
			ADX14:         adx14[i],
			RVOL20:        rvol20[i],
			SessionVWAP:   sessionVWAP[i],
			AVWAP:         avwap[i],
		}
	}
	return rows
}

// LatestFeatureRow is a convenience wrapper returning only the most recent row.
func LatestFeatureRow(candles []db.Candle) (db.FeatureRow, time.Time) {
	rows := BuildFeatureRows(candles)
	if len(rows) == 0 {
		return db.FeatureRow{}, time.Time{}
	}
	last := rows[len(rows)-1]
	return last, last.Ts
}
