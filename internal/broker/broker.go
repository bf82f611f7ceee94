// Package broker implements the paper broker: deterministic fills against
// the latest candle with a volatility-scaled slippage and fee model, and
// atomic persistence of the resulting trade/position pair (§4.7).
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/paper-trader/daemon/internal/db"
)

// FeeBps is the per-leg fee in basis points (§4.7: fees = 2bps/leg).
const FeeBps = 2.0

// MinSlippageBps is the floor on simulated slippage regardless of how
// tight the current bar's range is.
const MinSlippageBps = 3.0

// SlippageRangeMultiplier scales the bar's high/low range into slippage.
const SlippageRangeMultiplier = 15.0

var (
	feeRate         = decimal.NewFromFloat(FeeBps).Div(decimal.NewFromInt(10000))
	minSlippageBps  = decimal.NewFromFloat(MinSlippageBps)
	slippageRangeMl = decimal.NewFromFloat(SlippageRangeMultiplier)
	hundred         = decimal.NewFromInt(100)
	tenThousand     = decimal.NewFromInt(10000)
)

// Broker executes paper fills and persists the resulting state. All
// fee/P&L arithmetic is done in shopspring/decimal and converted back to
// float64 only at the db.Trade/db.Position struct boundary, so rounding in
// the money path never compounds across fills.
type Broker struct {
	db *db.DB
}

// New creates a paper broker backed by the given database.
func New(database *db.DB) *Broker {
	return &Broker{db: database}
}

// SlippageBps computes the simulated slippage for a fill against the given
// bar: max(3, 15 * high-low range as a percentage of close), per §4.7.
func SlippageBps(candle db.Candle) float64 {
	slip, _ := slippageBpsDecimal(candle).Float64()
	return slip
}

func slippageBpsDecimal(candle db.Candle) decimal.Decimal {
	close := decimal.NewFromFloat(candle.Close)
	if close.IsZero() {
		return minSlippageBps
	}
	high := decimal.NewFromFloat(candle.High)
	low := decimal.NewFromFloat(candle.Low)
	hlPct := high.Sub(low).Div(close).Mul(hundred)
	slip := slippageRangeMl.Mul(hlPct)
	return decimal.Max(minSlippageBps, slip)
}

// fillPrice applies slippage against the reference price in the direction
// that is unfavorable to the trader (paper trading never gets price
// improvement).
func fillPrice(reference float64, sign float64, slipBps decimal.Decimal) decimal.Decimal {
	ref := decimal.NewFromFloat(reference)
	signD := decimal.NewFromFloat(sign)
	adj := decimal.NewFromInt(1).Add(signD.Mul(slipBps).Div(tenThousand))
	return ref.Mul(adj)
}

// feeForNotional returns the fee for one leg of notional value.
func feeForNotional(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(feeRate)
}

// OpenTrade opens a new position for symbol at the given candle's close,
// simulating entry slippage and fees, and persists the trade/position pair
// atomically (§8 property: an open position always has exactly one
// matching open trade).
func (b *Broker) OpenTrade(ctx context.Context, symbol string, side db.PositionSide, qty float64, candle db.Candle, stop float64, decisionID string, rationale []byte) (*db.Trade, error) {
	slipD := slippageBpsDecimal(candle)
	entryPriceD := fillPrice(candle.Close, side.SideSign(), slipD)
	entryFeesD := feeForNotional(decimal.NewFromFloat(qty).Mul(entryPriceD))

	slip, _ := slipD.Float64()
	entryPrice, _ := entryPriceD.Float64()
	entryFees, _ := entryFeesD.Float64()

	trade := &db.Trade{
		ID:                uuid.New(),
		Symbol:            symbol,
		Side:              side,
		Qty:               qty,
		DecisionID:        decisionID,
		EntryPrice:        entryPrice,
		EntryFees:         entryFees,
		EntrySlippageBps:  slip,
		OpenedTs:          candle.Ts,
		DecisionRationale: rationale,
	}
	position := &db.Position{
		Symbol:       symbol,
		Side:         side,
		Qty:          qty,
		AvgPrice:     entryPrice,
		Stop:         stop,
		TradeID:      trade.ID,
		OpenedTs:     candle.Ts,
		LastUpdateTs: candle.Ts,
	}

	if err := b.db.CreateTradeAndPosition(ctx, trade, position); err != nil {
		return nil, fmt.Errorf("open trade %s: %w", symbol, err)
	}

	log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("qty", qty).
		Float64("entry_price", entryPrice).
		Float64("slippage_bps", slip).
		Msg("paper trade opened")

	return trade, nil
}

// CloseTrade exits an open position at the given candle's close, applying
// exit slippage/fees, computing realized P&L per §3's formula, and
// persisting the trade close and position removal atomically.
func (b *Broker) CloseTrade(ctx context.Context, trade *db.Trade, position *db.Position, candle db.Candle, reason string) (float64, error) {
	slipD := slippageBpsDecimal(candle)
	exitPriceD := fillPrice(candle.Close, -position.Side.SideSign(), slipD)
	exitFeesD := feeForNotional(decimal.NewFromFloat(position.Qty).Mul(exitPriceD))

	signD := decimal.NewFromFloat(position.Side.SideSign())
	qtyD := decimal.NewFromFloat(position.Qty)
	entryPriceD := decimal.NewFromFloat(trade.EntryPrice)
	entryFeesD := decimal.NewFromFloat(trade.EntryFees)
	realizedPnLD := exitPriceD.Sub(entryPriceD).Mul(qtyD).Mul(signD).Sub(entryFeesD).Sub(exitFeesD)

	exitPrice, _ := exitPriceD.Float64()
	exitFees, _ := exitFeesD.Float64()
	realizedPnL, _ := realizedPnLD.Float64()

	if err := b.db.CloseTradeAndPosition(ctx, trade.ID, position.Symbol, exitPrice, exitFees, realizedPnL, reason, candle.Ts); err != nil {
		return 0, fmt.Errorf("close trade %s: %w", position.Symbol, err)
	}

	log.Info().
		Str("symbol", position.Symbol).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", realizedPnL).
		Msg("paper trade closed")

	return realizedPnL, nil
}

// UnrealizedPnL computes the mark-to-market P&L for an open position
// against a reference price, before any exit fees are incurred.
func UnrealizedPnL(position db.Position, markPrice float64) float64 {
	sign := decimal.NewFromFloat(position.Side.SideSign())
	qty := decimal.NewFromFloat(position.Qty)
	mark := decimal.NewFromFloat(markPrice)
	avg := decimal.NewFromFloat(position.AvgPrice)
	pnl, _ := mark.Sub(avg).Mul(qty).Mul(sign).Float64()
	return pnl
}

// MarkToMarket aggregates unrealized P&L across every open position using
// the latest candle close for each symbol, for NAV computation (§3 NAV
// snapshot).
func MarkToMarket(positions []*db.Position, latestClose map[string]float64) float64 {
	total := decimal.Zero
	for _, p := range positions {
		if price, ok := latestClose[p.Symbol]; ok {
			total = total.Add(decimal.NewFromFloat(UnrealizedPnL(*p, price)))
		}
	}
	f, _ := total.Float64()
	return f
}

// NAVSnapshot computes the NAV snapshot row for a cycle, including
// drawdown against the running peak (§3).
func NAVSnapshot(ts time.Time, cashBaseline, realizedPnLTotal, unrealizedPnL, peakNAV float64) db.NAVSnapshot {
	cash := decimal.NewFromFloat(cashBaseline)
	realized := decimal.NewFromFloat(realizedPnLTotal)
	unrealized := decimal.NewFromFloat(unrealizedPnL)
	navD := cash.Add(realized).Add(unrealized)
	peakD := decimal.Max(decimal.NewFromFloat(peakNAV), navD)

	nav, _ := navD.Float64()
	peak, _ := peakD.Float64()
	ddPct := 0.0
	if peak > 0 {
		dd, _ := peakD.Sub(navD).Div(peakD).Mul(hundred).Float64()
		ddPct = dd
	}
	return db.NAVSnapshot{
		Ts:            ts,
		NAVUsd:        nav,
		RealizedPnL:   realizedPnLTotal,
		UnrealizedPnL: unrealizedPnL,
		PeakNAV:       peak,
		DDPct:         ddPct,
	}
}
