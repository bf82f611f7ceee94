package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Trade is the append-mostly ledger row for one position's full lifecycle.
// It is open while ExitTs is nil and closed once exit fields are filled in.
type Trade struct {
	ID                uuid.UUID       `db:"id"`
	Symbol            string          `db:"symbol"`
	Side              PositionSide    `db:"side"`
	Qty               float64         `db:"qty"`
	DecisionID        string          `db:"decision_id"`
	EntryPrice        float64         `db:"entry_price"`
	EntryFees         float64         `db:"entry_fees"`
	EntrySlippageBps  float64         `db:"entry_slippage_bps"`
	OpenedTs          time.Time       `db:"opened_ts"`
	ExitPrice         *float64        `db:"exit_price"`
	ExitFees          *float64        `db:"exit_fees"`
	ExitTs            *time.Time      `db:"exit_ts"`
	ExitReason        *string         `db:"exit_reason"`
	RealizedPnL       *float64        `db:"realized_pnl"`
	DecisionRationale json.RawMessage `db:"decision_rationale"`
}

// IsOpen reports whether the trade has not yet been closed.
func (t *Trade) IsOpen() bool {
	return t.ExitTs == nil
}

// CreateTradeAndPosition inserts a trade row and its matching position row
// in a single transaction, satisfying the invariant that a validator's
// no-open-position check and the broker's create race-free against each
// other: the row-level lock taken by the position insert (unique on
// symbol) makes a concurrent second open for the same symbol fail.
func (db *DB) CreateTradeAndPosition(ctx context.Context, trade *Trade, position *Position) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trades (
			id, symbol, side, qty, decision_id, entry_price, entry_fees,
			entry_slippage_bps, opened_ts, decision_rationale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		trade.ID, trade.Symbol, trade.Side, trade.Qty, trade.DecisionID,
		trade.EntryPrice, trade.EntryFees, trade.EntrySlippageBps, trade.OpenedTs,
		trade.DecisionRationale,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	if err := createPositionTx(ctx, tx, position); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit open trade: %w", err)
	}
	return nil
}

// CloseTradeAndPosition records exit fields on the trade and deletes the
// position row atomically, per §4.7's crash-safety requirement.
func (db *DB) CloseTradeAndPosition(ctx context.Context, tradeID uuid.UUID, symbol string, exitPrice, exitFees, realizedPnL float64, exitReason string, exitTs time.Time) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE trades
		SET exit_price = $2, exit_fees = $3, realized_pnl = $4, exit_reason = $5, exit_ts = $6
		WHERE id = $1 AND exit_ts IS NULL
	`, tradeID, exitPrice, exitFees, realizedPnL, exitReason, exitTs)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade not found or already closed: %s", tradeID)
	}

	if err := deletePositionTx(ctx, tx, symbol); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit close trade: %w", err)
	}
	return nil
}

// GetTrade retrieves a trade by id, open or closed.
func (db *DB) GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error) {
	query := `
		SELECT id, symbol, side, qty, decision_id, entry_price, entry_fees,
			entry_slippage_bps, opened_ts, exit_price, exit_fees, exit_ts,
			exit_reason, realized_pnl, decision_rationale
		FROM trades WHERE id = $1
	`
	var t Trade
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.DecisionID, &t.EntryPrice, &t.EntryFees,
		&t.EntrySlippageBps, &t.OpenedTs, &t.ExitPrice, &t.ExitFees, &t.ExitTs,
		&t.ExitReason, &t.RealizedPnL, &t.DecisionRationale,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("trade not found: %s", id)
		}
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return &t, nil
}

// GetOpenTradeBySymbol returns the open trade paired with a symbol's open
// position, or nil if the symbol is flat.
func (db *DB) GetOpenTradeBySymbol(ctx context.Context, symbol string) (*Trade, error) {
	query := `
		SELECT id, symbol, side, qty, decision_id, entry_price, entry_fees,
			entry_slippage_bps, opened_ts, exit_price, exit_fees, exit_ts,
			exit_reason, realized_pnl, decision_rationale
		FROM trades WHERE symbol = $1 AND exit_ts IS NULL
	`
	var t Trade
	err := db.pool.QueryRow(ctx, query, symbol).Scan(
		&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.DecisionID, &t.EntryPrice, &t.EntryFees,
		&t.EntrySlippageBps, &t.OpenedTs, &t.ExitPrice, &t.ExitFees, &t.ExitTs,
		&t.ExitReason, &t.RealizedPnL, &t.DecisionRationale,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get open trade: %w", err)
	}
	return &t, nil
}

// RealizedPnLSince sums realized P&L for trades closed at or after since,
// used by NAV snapshot construction.
func (db *DB) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var total *float64
	err := db.pool.QueryRow(ctx, `
		SELECT SUM(realized_pnl) FROM trades WHERE exit_ts IS NOT NULL AND exit_ts >= $1
	`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// TotalRealizedPnL sums realized P&L across every closed trade, the basis
// for NAV computed from the full trade ledger.
func (db *DB) TotalRealizedPnL(ctx context.Context) (float64, error) {
	var total *float64
	err := db.pool.QueryRow(ctx, `
		SELECT SUM(realized_pnl) FROM trades WHERE exit_ts IS NOT NULL
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
