package db

import (
	"context"
	"fmt"
	"time"
)

// Candle is one immutable OHLCV bar, keyed by (symbol, timeframe, ts).
type Candle struct {
	Symbol    string    `db:"symbol"`
	Timeframe string    `db:"timeframe"`
	Ts        time.Time `db:"ts"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    float64   `db:"volume"`
}

// UpsertCandles inserts a batch of candles, tolerating duplicates per the
// append-only, idempotent-insert contract of §3. Runs through the database
// circuit breaker since ingest calls this once per symbol per cycle and a
// stalled database must not be hammered by every symbol's goroutine at once.
func (db *DB) UpsertCandles(ctx context.Context, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	_, err := db.ExecuteWithCircuitBreaker(func() (interface{}, error) {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin candle tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		for _, c := range candles {
			_, err := tx.Exec(ctx, `
				INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (symbol, timeframe, ts) DO NOTHING
			`, c.Symbol, c.Timeframe, c.Ts, c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return nil, fmt.Errorf("upsert candle %s %s %s: %w", c.Symbol, c.Timeframe, c.Ts, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit candle batch: %w", err)
		}
		return nil, nil
	})
	return err
}

// RecentCandles loads the most recent `limit` closed bars for a symbol and
// timeframe in ascending time order, the shape the indicator library and
// ingest staleness gate both consume.
func (db *DB) RecentCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	result, err := db.ExecuteWithCircuitBreaker(func() (interface{}, error) {
		query := `
			SELECT symbol, timeframe, ts, open, high, low, close, volume
			FROM (
				SELECT symbol, timeframe, ts, open, high, low, close, volume
				FROM candles
				WHERE symbol = $1 AND timeframe = $2
				ORDER BY ts DESC
				LIMIT $3
			) recent
			ORDER BY ts ASC
		`
		rows, err := db.pool.Query(ctx, query, symbol, timeframe, limit)
		if err != nil {
			return nil, fmt.Errorf("query recent candles: %w", err)
		}
		defer rows.Close()

		var out []Candle
		for rows.Next() {
			var c Candle
			if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.Ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
				return nil, fmt.Errorf("scan candle: %w", err)
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate candles: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	candles, _ := result.([]Candle)
	return candles, nil
}

// LatestCandleTs returns the close time of the newest persisted candle for
// a symbol/timeframe, used by the ingest staleness gate. Returns the zero
// time if none exist yet.
func (db *DB) LatestCandleTs(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var ts time.Time
	err := db.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(ts), 'epoch'::timestamptz) FROM candles WHERE symbol = $1 AND timeframe = $2
	`, symbol, timeframe).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest candle ts: %w", err)
	}
	return ts, nil
}
