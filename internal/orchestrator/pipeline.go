package orchestrator

import (
	"context"
	"time"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/indicators"
	"github.com/paper-trader/daemon/internal/llm"
	"github.com/paper-trader/daemon/internal/metrics"
	"github.com/paper-trader/daemon/internal/sentiment"
	"github.com/paper-trader/daemon/internal/signal"

	"github.com/paper-trader/daemon/internal/audit"
)

// symbolResult accumulates one symbol's pipeline outcome for the cycle
// summary and the per-symbol Prometheus counter.
type symbolResult struct {
	symbol            string
	dataError         bool
	signalFired       bool
	tradeOpened       bool
	tradeClosed       bool
	validatorRejected bool
	rejectReason      string
	timedOut          bool
}

func (r symbolResult) outcome() string {
	switch {
	case r.timedOut:
		return "timeout"
	case r.dataError:
		return "data_error"
	case r.tradeOpened:
		return "trade_opened"
	case r.tradeClosed:
		return "trade_closed"
	case r.validatorRejected:
		return "validator_reject"
	case r.signalFired:
		return "signal_only"
	default:
		return "skip"
	}
}

// processSymbol drives one symbol through the §4.1 per-symbol stage list,
// stopping at the first stage that gates further progress (stale data,
// warm-up, kill-switch, no signal, a failed advisor/consultant/validator
// check) without aborting any other symbol's goroutine.
func (c *Cycle) processSymbol(ctx context.Context, symbol, decisionID string, bar int, now time.Time) symbolResult {
	res := symbolResult{symbol: symbol}
	timeframe := c.cfg.Trading.Timeframe

	// --- Ingest ---
	rawBars, err := c.exchange.FetchOHLCV(ctx, symbol, timeframe, ingestBars, now)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("ingest fetch failed")
		_ = c.audit.EmitError(ctx, symbol, db.ActionIngestError, err)
		res.dataError = true
		return res
	}

	candles := make([]db.Candle, 0, len(rawBars))
	for _, b := range rawBars {
		candles = append(candles, db.Candle{
			Symbol: symbol, Timeframe: timeframe, Ts: b.OpenTime,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		})
	}
	if err := c.db.UpsertCandles(ctx, candles); err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("persist candles failed")
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}

	tfMinutes, err := timeframeMinutes(timeframe)
	if err != nil {
		_ = c.audit.EmitError(ctx, symbol, db.ActionIngestError, err)
		res.dataError = true
		return res
	}
	tfDur := time.Duration(tfMinutes) * time.Minute

	latestTs, err := c.db.LatestCandleTs(ctx, symbol, timeframe)
	if err != nil {
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}
	if now.Sub(latestTs) > 2*tfDur {
		_ = c.audit.Emit(ctx, audit.Entry{
			Level: db.LevelWarn, Tags: []db.EventTag{db.TagRisk, db.TagData}, Symbol: symbol,
			Timeframe: timeframe, DecisionID: decisionID, Action: db.ActionStaleData,
			Payload: map[string]interface{}{"latest_ts": latestTs, "now": now},
		})
		res.dataError = true
		return res
	}

	// --- Features ---
	recent, err := c.db.RecentCandles(ctx, symbol, timeframe, ingestBars)
	if err != nil {
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}
	featureRows := indicators.BuildFeatureRows(recent)
	if len(featureRows) == 0 {
		res.dataError = true
		return res
	}
	if err := c.db.UpsertFeatures(ctx, featureRows); err != nil {
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}

	latestFeature := featureRows[len(featureRows)-1]
	latestCandle := recent[len(recent)-1]

	if len(recent) < ingestBars {
		_ = c.audit.Emit(ctx, audit.Entry{
			Level: db.LevelInfo, Tags: []db.EventTag{db.TagFeatures}, Symbol: symbol,
			Timeframe: timeframe, DecisionID: decisionID,
			Payload: map[string]interface{}{"bars_available": len(recent), "bars_needed": ingestBars},
		})
		return res
	}

	// --- Classify regime ---
	regime := signal.ClassifyRegime(latestFeature)
	regimeAction := db.ActionRegimeChop
	if regime == signal.RegimeTrend {
		regimeAction = db.ActionRegimeTrend
	}
	_ = c.audit.EmitSignal(ctx, symbol, timeframe, decisionID, regimeAction, map[string]interface{}{
		"adx14": latestFeature.ADX14, "ema50": latestFeature.EMA50, "ema200": latestFeature.EMA200,
	})
	res.signalFired = true

	// --- Kill-switch (§4.1: evaluated before any entry, flattens an
	// existing position too) ---
	history := recent
	if hist, herr := c.db.RecentCandles(ctx, symbol, timeframe, killSwitchLookbackDays*24*60/tfMinutes); herr == nil && len(hist) > len(recent) {
		history = hist
	}
	vol5m, median30d := killSwitchInputs(history)
	if c.killSwitch.Evaluate(symbol, vol5m, median30d, bar) {
		c.metrics.KillSwitchTrips.WithLabelValues(symbol).Inc()
		_ = c.audit.EmitKillSwitch(ctx, map[string]interface{}{
			"symbol": symbol, "vol_5m": vol5m, "median_30d": median30d, "bar": bar,
		})
		if pos, perr := c.db.GetOpenPosition(ctx, symbol); perr == nil && pos != nil {
			c.closePosition(ctx, symbol, decisionID, pos, latestCandle, db.ActionExitKill, &res)
		}
		return res
	}

	// --- Manage open position ---
	pos, err := c.db.GetOpenPosition(ctx, symbol)
	if err != nil {
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}
	if pos != nil {
		barsHeld := int(now.Sub(pos.OpenedTs) / tfDur)
		exit := signal.EvaluateExit(*pos, latestCandle, latestFeature.ATR14, barsHeld, signal.DefaultMaxHoldBars)
		if exit.Exit {
			action := db.ActionExitTime
			if exit.Reason == signal.ExitReasonStop {
				action = db.ActionExitStop
				c.killSwitch.StartCooldown(symbol, bar)
			}
			c.closePosition(ctx, symbol, decisionID, pos, latestCandle, action, &res)
		} else if exit.UpdatedStop != pos.Stop {
			if err := c.db.UpdateStop(ctx, symbol, exit.UpdatedStop); err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("update trailing stop failed")
			}
		}
		// An existing position fully owns the entry decision for this
		// symbol this cycle, closed or not.
		return res
	}

	// --- Entry candidate ---
	if regime != signal.RegimeTrend {
		_ = c.audit.EmitSignal(ctx, symbol, timeframe, decisionID, db.ActionSkipNoSignal, nil)
		return res
	}
	longTriggered := signal.LongEntryTriggered(latestCandle, latestFeature)
	shortTriggered := c.cfg.Trading.EnableShortEntries && signal.ShortEntryTriggered(latestCandle, latestFeature)
	if !longTriggered && !shortTriggered {
		_ = c.audit.EmitSignal(ctx, symbol, timeframe, decisionID, db.ActionSkipNoSignal, nil)
		return res
	}

	// --- Sentiment snapshot ---
	snap, err := c.sentiment.GetOrRefresh(ctx, symbol, now, c.provider)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("sentiment refresh failed, proceeding with neutral reading")
	}
	sentimentCtx := llm.SentimentContext{Sent24h: snap.Sent24h, Sent7d: snap.Sent7d, SentTrend: snap.SentTrend, Burst: snap.Burst}

	marketCtx := llm.MarketContext{
		Symbol:         symbol,
		CurrentPrice:   latestCandle.Close,
		PriceChange24h: snap.Sent24h * 100,
		Volume24h:      latestCandle.Volume,
		Indicators: map[string]float64{
			"ema50": latestFeature.EMA50, "ema200": latestFeature.EMA200, "rsi14": latestFeature.RSI14,
			"atr14": latestFeature.ATR14, "adx14": latestFeature.ADX14, "cmf20": latestFeature.CMF20,
			"rvol20": latestFeature.RVOL20, "donchian_upper": latestFeature.DonchianUpper,
			"donchian_lower": latestFeature.DonchianLower,
		},
		Timestamp: now,
	}

	// --- Advisor ---
	proposal, err := c.advisor.Propose(ctx, decisionID, marketCtx, string(regime), sentimentCtx)
	if err != nil || proposal == nil {
		return res
	}
	proposal.Symbol = symbol

	entryPrice := latestCandle.Close
	sideSign := proposal.PositionSide().SideSign()
	stop := entryPrice - sideSign*2*latestFeature.ATR14 // deterministic 2xATR initial stop, §4.3/S2

	navVal := c.currentNAV(ctx)
	qty, err := signal.SizePosition(proposal.PositionSide(), navVal, entryPrice, stop)
	if err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("invalid stop distance, skipping entry")
		return res
	}
	proposal.Entry = entryPrice
	proposal.Stop = stop
	proposal.Qty = qty

	// --- Consultant ---
	positionsCtx := c.openPositionsContext(ctx)
	outcome := c.consultant.Review(ctx, decisionID, marketCtx, *proposal, entryPrice, latestFeature.ATR14, positionsCtx, navVal)
	if outcome.Rejected {
		return res
	}
	finalProposal := outcome.Proposal

	// --- Validator ---
	verdict := c.validator.Validate(ctx, finalProposal, regime, nil, navVal, bar)
	_ = c.audit.EmitRisk(ctx, symbol, decisionID, verdict.Accepted, verdict)
	if !verdict.Accepted {
		res.validatorRejected = true
		res.rejectReason = verdict.Reason
		return res
	}

	// --- Broker / Persist ---
	rationale := Rationale{
		DecisionID: decisionID,
		Symbol:     symbol,
		Ts:         now.UTC().Format(time.RFC3339),
		Indicators: latestFeature,
		Regime:     regime,
		Sentiment:  sentiment.Snapshot{Sent24h: snap.Sent24h, Sent7d: snap.Sent7d, SentTrend: snap.SentTrend, Burst: snap.Burst},
		Advisor:    proposal,
		Consultant: consultantSummaryFor(outcome),
		Final:      finalDecisionFor(outcome),
	}

	trade, err := c.broker.OpenTrade(ctx, symbol, finalProposal.PositionSide(), finalProposal.Qty, latestCandle, finalProposal.Stop, decisionID, rationale.Bytes())
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("open trade failed")
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		res.dataError = true
		return res
	}

	action := db.ActionOpenLong
	if finalProposal.Side == "short" {
		action = db.ActionOpenShort
	}
	_ = c.audit.EmitTrade(ctx, symbol, decisionID, action, trade.ID, map[string]interface{}{
		"qty": trade.Qty, "entry_price": trade.EntryPrice, "stop": finalProposal.Stop,
	})
	res.tradeOpened = true
	return res
}

// closePosition exits the open trade paired with pos and records the
// outcome, used by both the kill-switch and the exit-predicate stages.
func (c *Cycle) closePosition(ctx context.Context, symbol, decisionID string, pos *db.Position, candle db.Candle, action string, res *symbolResult) {
	trade, err := c.db.GetOpenTradeBySymbol(ctx, symbol)
	if err != nil || trade == nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("close position: matching open trade not found")
		return
	}

	pnl, err := c.broker.CloseTrade(ctx, trade, pos, candle, action)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("close trade failed")
		_ = c.audit.EmitError(ctx, symbol, db.ActionPersistError, err)
		return
	}

	_ = c.audit.EmitTrade(ctx, symbol, decisionID, action, trade.ID, map[string]interface{}{"realized_pnl": pnl})
	metrics.RecordTrade(pnl)
	res.tradeClosed = true
}

// currentNAV reads the last persisted NAV snapshot, falling back to the
// configured starting cash before the first snapshot ever exists.
func (c *Cycle) currentNAV(ctx context.Context) float64 {
	snap, err := c.db.LatestNAVSnapshot(ctx)
	if err != nil || snap == nil {
		return c.cfg.Trading.InitialCapital
	}
	return snap.NAVUsd
}

// openPositionsContext builds the consultant's portfolio-awareness view
// (§4.5). Current price is approximated by the position's own average
// entry price rather than a fresh per-symbol quote, since the consultant
// only uses this to judge aggregate exposure, not to price anything.
func (c *Cycle) openPositionsContext(ctx context.Context) []llm.PositionContext {
	positions, err := c.db.GetAllOpenPositions(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("load open positions for consultant context failed")
		return nil
	}
	out := make([]llm.PositionContext, 0, len(positions))
	for _, p := range positions {
		out = append(out, llm.PositionContext{
			Symbol: p.Symbol, Side: string(p.Side), EntryPrice: p.AvgPrice, CurrentPrice: p.AvgPrice,
			Quantity: p.Qty, EntryTimestamp: p.OpenedTs, OpenDuration: time.Since(p.OpenedTs).String(),
		})
	}
	return out
}
