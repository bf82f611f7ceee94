package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SentimentSnapshot is the twice-daily cached sentiment reading for a
// symbol. sent_trend is derived (sent_24h - sent_7d), not independently
// stored input.
type SentimentSnapshot struct {
	Symbol    string          `db:"symbol"`
	Ts        time.Time       `db:"ts"`
	Sent24h   float64         `db:"sent_24h"`
	Sent7d    float64         `db:"sent_7d"`
	SentTrend float64         `db:"sent_trend"`
	Burst     float64         `db:"burst"`
	Sources   json.RawMessage `db:"sources"`
}

// UpsertSentimentSnapshot stores the latest refresh for a symbol's
// sentiment window.
func (db *DB) UpsertSentimentSnapshot(ctx context.Context, s *SentimentSnapshot) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO sentiment_snapshots (symbol, ts, sent_24h, sent_7d, sent_trend, burst, sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			sent_24h = EXCLUDED.sent_24h, sent_7d = EXCLUDED.sent_7d,
			sent_trend = EXCLUDED.sent_trend, burst = EXCLUDED.burst, sources = EXCLUDED.sources
	`, s.Symbol, s.Ts, s.Sent24h, s.Sent7d, s.SentTrend, s.Burst, s.Sources)
	if err != nil {
		return fmt.Errorf("upsert sentiment snapshot: %w", err)
	}
	return nil
}

// LatestSentimentSnapshot returns the most recent cached snapshot for a
// symbol, or nil if none has ever been fetched.
func (db *DB) LatestSentimentSnapshot(ctx context.Context, symbol string) (*SentimentSnapshot, error) {
	query := `
		SELECT symbol, ts, sent_24h, sent_7d, sent_trend, burst, sources
		FROM sentiment_snapshots
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT 1
	`
	var s SentimentSnapshot
	err := db.pool.QueryRow(ctx, query, symbol).Scan(
		&s.Symbol, &s.Ts, &s.Sent24h, &s.Sent7d, &s.SentTrend, &s.Burst, &s.Sources,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest sentiment snapshot: %w", err)
	}
	return &s, nil
}
