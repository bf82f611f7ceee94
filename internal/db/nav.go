package db

import (
	"context"
	"fmt"
	"time"
)

// NAVSnapshot is a derived, never-edited record of portfolio value at a
// point in time. dd_pct is measured against the running peak across all
// snapshots, which is non-decreasing by construction (§3 invariant 5).
type NAVSnapshot struct {
	Ts            time.Time `db:"ts"`
	NAVUsd        float64   `db:"nav_usd"`
	RealizedPnL   float64   `db:"realized_pnl"`
	UnrealizedPnL float64   `db:"unrealized_pnl"`
	PeakNAV       float64   `db:"peak_nav"`
	DDPct         float64   `db:"dd_pct"`
}

// InsertNAVSnapshot appends a NAV snapshot. Snapshots are strictly
// monotonic in ts and are never updated once written.
func (db *DB) InsertNAVSnapshot(ctx context.Context, s *NAVSnapshot) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO nav_snapshots (ts, nav_usd, realized_pnl, unrealized_pnl, peak_nav, dd_pct)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.Ts, s.NAVUsd, s.RealizedPnL, s.UnrealizedPnL, s.PeakNAV, s.DDPct)
	if err != nil {
		return fmt.Errorf("insert nav snapshot: %w", err)
	}
	return nil
}

// LatestNAVSnapshot returns the most recent snapshot, the source of the
// running peak NAV used to compute the next snapshot's drawdown.
func (db *DB) LatestNAVSnapshot(ctx context.Context) (*NAVSnapshot, error) {
	query := `
		SELECT ts, nav_usd, realized_pnl, unrealized_pnl, peak_nav, dd_pct
		FROM nav_snapshots ORDER BY ts DESC LIMIT 1
	`
	var s NAVSnapshot
	err := db.pool.QueryRow(ctx, query).Scan(&s.Ts, &s.NAVUsd, &s.RealizedPnL, &s.UnrealizedPnL, &s.PeakNAV, &s.DDPct)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest nav snapshot: %w", err)
	}
	return &s, nil
}

// EquityCurveSince returns the NAV series from `since` onward in ascending
// time order, the portfolio-wide series a periodic Sharpe/VaR/drawdown
// report computes over.
func (db *DB) EquityCurveSince(ctx context.Context, since time.Time) ([]float64, []time.Time, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT nav_usd, ts FROM nav_snapshots WHERE ts >= $1 ORDER BY ts ASC
	`, since)
	if err != nil {
		return nil, nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	var values []float64
	var times []time.Time
	for rows.Next() {
		var v float64
		var ts time.Time
		if err := rows.Scan(&v, &ts); err != nil {
			return nil, nil, fmt.Errorf("scan equity point: %w", err)
		}
		values = append(values, v)
		times = append(times, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate equity curve: %w", err)
	}
	return values, times, nil
}
