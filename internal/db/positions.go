package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PositionSide represents the side of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position is the single open-position row for a symbol. At most one row
// per symbol may exist at any instant; it is created atomically with its
// matching trade and deleted atomically when that trade closes.
type Position struct {
	Symbol       string       `db:"symbol"`
	Side         PositionSide `db:"side"`
	Qty          float64      `db:"qty"`
	AvgPrice     float64      `db:"avg_price"`
	Stop         float64      `db:"stop"`
	TradeID      uuid.UUID    `db:"trade_id"`
	OpenedTs     time.Time    `db:"opened_ts"`
	LastUpdateTs time.Time    `db:"last_update_ts"`
}

// SideSign returns +1 for long, -1 for short.
func (s PositionSide) SideSign() float64 {
	if s == PositionSideShort {
		return -1
	}
	return 1
}

// GetOpenPosition returns the open position for a symbol, or nil if flat.
func (db *DB) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	query := `
		SELECT symbol, side, qty, avg_price, stop, trade_id, opened_ts, last_update_ts
		FROM positions
		WHERE symbol = $1
	`

	var p Position
	err := db.pool.QueryRow(ctx, query, symbol).Scan(
		&p.Symbol, &p.Side, &p.Qty, &p.AvgPrice, &p.Stop, &p.TradeID, &p.OpenedTs, &p.LastUpdateTs,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get open position: %w", err)
	}
	return &p, nil
}

// GetAllOpenPositions returns every currently open position, used for
// mark-to-market during NAV aggregation.
func (db *DB) GetAllOpenPositions(ctx context.Context) ([]*Position, error) {
	query := `
		SELECT symbol, side, qty, avg_price, stop, trade_id, opened_ts, last_update_ts
		FROM positions
		ORDER BY symbol
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all open positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Qty, &p.AvgPrice, &p.Stop, &p.TradeID, &p.OpenedTs, &p.LastUpdateTs); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

// UpdateStop raises (long) or lowers (short) the trailing stop on an open
// position. Called from the exit-predicate trailing-stop rule.
func (db *DB) UpdateStop(ctx context.Context, symbol string, stop float64) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE positions SET stop = $2, last_update_ts = $3 WHERE symbol = $1
	`, symbol, stop, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update stop: %w", err)
	}
	return nil
}

// createPositionTx inserts the position row inside a caller-owned
// transaction; see Broker.OpenTrade for the atomic pairing with the trade
// insert.
func createPositionTx(ctx context.Context, tx pgx.Tx, p *Position) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO positions (symbol, side, qty, avg_price, stop, trade_id, opened_ts, last_update_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.Symbol, p.Side, p.Qty, p.AvgPrice, p.Stop, p.TradeID, p.OpenedTs, p.LastUpdateTs)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// deletePositionTx removes the position row inside a caller-owned
// transaction when its trade closes.
func deletePositionTx(ctx context.Context, tx pgx.Tx, symbol string) error {
	_, err := tx.Exec(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}
