package db

import (
	"context"
	"fmt"
	"time"
)

// FeatureRow carries the full indicator battery for one candle. It is
// recomputable from candles and keyed identically, so a feature row must
// never be written without its underlying candle already persisted.
type FeatureRow struct {
	Symbol        string    `db:"symbol"`
	Timeframe     string    `db:"timeframe"`
	Ts            time.Time `db:"ts"`
	EMA50         float64   `db:"ema50"`
	EMA200        float64   `db:"ema200"`
	HMA           float64   `db:"hma"`
	RSI14         float64   `db:"rsi14"`
	StochRSI      float64   `db:"stoch_rsi"`
	ROC10         float64   `db:"roc10"`
	ATR14         float64   `db:"atr14"`
	BBLower       float64   `db:"bb_lower"`
	BBMid         float64   `db:"bb_mid"`
	BBUpper       float64   `db:"bb_upper"`
	DonchianLower float64   `db:"donchian_lower"`
	DonchianUpper float64   `db:"donchian_upper"`
	OBV           float64   `db:"obv"`
	CMF20         float64   `db:"cmf20"`
	ADX14         float64   `db:"adx14"`
	RVOL20        float64   `db:"rvol20"`
	SessionVWAP   float64   `db:"session_vwap"`
	AVWAP         float64   `db:"avwap"`
}

// UpsertFeatures persists the computed indicator battery for a batch of
// candle timestamps, idempotent on (symbol, timeframe, ts).
func (db *DB) UpsertFeatures(ctx context.Context, rows []FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin feature tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO features (
				symbol, timeframe, ts, ema50, ema200, hma, rsi14, stoch_rsi, roc10,
				atr14, bb_lower, bb_mid, bb_upper, donchian_lower, donchian_upper,
				obv, cmf20, adx14, rvol20, session_vwap, avwap
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
				ema50 = EXCLUDED.ema50, ema200 = EXCLUDED.ema200, hma = EXCLUDED.hma,
				rsi14 = EXCLUDED.rsi14, stoch_rsi = EXCLUDED.stoch_rsi, roc10 = EXCLUDED.roc10,
				atr14 = EXCLUDED.atr14, bb_lower = EXCLUDED.bb_lower, bb_mid = EXCLUDED.bb_mid,
				bb_upper = EXCLUDED.bb_upper, donchian_lower = EXCLUDED.donchian_lower,
				donchian_upper = EXCLUDED.donchian_upper, obv = EXCLUDED.obv, cmf20 = EXCLUDED.cmf20,
				adx14 = EXCLUDED.adx14, rvol20 = EXCLUDED.rvol20, session_vwap = EXCLUDED.session_vwap,
				avwap = EXCLUDED.avwap
		`,
			r.Symbol, r.Timeframe, r.Ts, r.EMA50, r.EMA200, r.HMA, r.RSI14, r.StochRSI, r.ROC10,
			r.ATR14, r.BBLower, r.BBMid, r.BBUpper, r.DonchianLower, r.DonchianUpper,
			r.OBV, r.CMF20, r.ADX14, r.RVOL20, r.SessionVWAP, r.AVWAP,
		)
		if err != nil {
			return fmt.Errorf("upsert feature row %s %s: %w", r.Symbol, r.Ts, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit feature batch: %w", err)
	}
	return nil
}

// LatestFeature returns the most recently computed feature row for a
// symbol/timeframe, the snapshot consumed by signal rules and the advisor.
func (db *DB) LatestFeature(ctx context.Context, symbol, timeframe string) (*FeatureRow, error) {
	query := `
		SELECT symbol, timeframe, ts, ema50, ema200, hma, rsi14, stoch_rsi, roc10,
			atr14, bb_lower, bb_mid, bb_upper, donchian_lower, donchian_upper,
			obv, cmf20, adx14, rvol20, session_vwap, avwap
		FROM features
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY ts DESC
		LIMIT 1
	`
	var r FeatureRow
	err := db.pool.QueryRow(ctx, query, symbol, timeframe).Scan(
		&r.Symbol, &r.Timeframe, &r.Ts, &r.EMA50, &r.EMA200, &r.HMA, &r.RSI14, &r.StochRSI, &r.ROC10,
		&r.ATR14, &r.BBLower, &r.BBMid, &r.BBUpper, &r.DonchianLower, &r.DonchianUpper,
		&r.OBV, &r.CMF20, &r.ADX14, &r.RVOL20, &r.SessionVWAP, &r.AVWAP,
	)
	if err != nil {
		return nil, fmt.Errorf("latest feature: %w", err)
	}
	return &r, nil
}
