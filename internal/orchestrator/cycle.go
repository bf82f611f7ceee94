// Package orchestrator drives the daemon's fixed-interval trading cycle:
// per-symbol ingest/feature/signal/advisor/consultant/validator/broker
// pipelines fanned out in parallel, joined before a single NAV snapshot is
// computed and persisted (§4.1, §5).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/paper-trader/daemon/internal/audit"
	"github.com/paper-trader/daemon/internal/broker"
	"github.com/paper-trader/daemon/internal/config"
	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/exchange"
	"github.com/paper-trader/daemon/internal/llm"
	"github.com/paper-trader/daemon/internal/metrics"
	"github.com/paper-trader/daemon/internal/risk"
	"github.com/paper-trader/daemon/internal/sentiment"
)

// maxIndicatorLookback is the longest indicator window in the battery
// (EMA200, §4.2). Ingest fetches and the warm-up gate both key off 3x this.
const maxIndicatorLookback = 200

// ingestBars is N from §4.1: "N >= 3x longest indicator lookback".
const ingestBars = 3 * maxIndicatorLookback

// maxSymbolConcurrency bounds the per-symbol fan-out so a wide symbol
// universe can't open unbounded simultaneous DB/exchange/LLM connections
// at once (§5: "Persistence connection pool: bounded").
const maxSymbolConcurrency = 8

// ExchangeSource is the subset of exchange.BinanceSource the cycle depends
// on, narrowed so tests can supply a fake without hitting a live exchange.
type ExchangeSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, asOf time.Time) ([]exchange.OHLCVBar, error)
}

// Cycle is a plain struct wiring every dependency the pipeline needs: data
// store, exchange adapter, sentiment provider, advisor/consultant clients,
// risk validator, paper broker, event sink, metrics, and a logger. It holds
// no mutable domain state beyond the kill-switch and a per-symbol bar
// counter, both already designed as single-process in-memory state (§5).
type Cycle struct {
	db         *db.DB
	exchange   ExchangeSource
	sentiment  *sentiment.Store
	provider   sentiment.Provider
	advisor    *llm.Advisor
	consultant *llm.Consultant
	validator  *risk.Validator
	killSwitch *risk.KillSwitch
	broker     *broker.Broker
	audit      *audit.Sink
	metrics    *OrchestratorMetrics
	log        zerolog.Logger

	cfg config.Config

	barsMu sync.Mutex
	bars   map[string]int

	lastMu sync.Mutex
	last   CycleSummary
	hasRun bool
}

// Deps collects Cycle's constructor arguments, grounded on the teacher's
// OrchestratorConfig field-by-field wiring in cmd/orchestrator/main.go.
type Deps struct {
	DB         *db.DB
	Exchange   ExchangeSource
	Sentiment  *sentiment.Store
	Provider   sentiment.Provider
	Advisor    *llm.Advisor
	Consultant *llm.Consultant
	Validator  *risk.Validator
	KillSwitch *risk.KillSwitch
	Broker     *broker.Broker
	Audit      *audit.Sink
	Log        zerolog.Logger
	Config     config.Config
}

// NewCycle builds a Cycle ready to run. Every dependency is required; a
// daemon with no LLM key still passes a configured FallbackClient (§6: a
// missing optional key degrades features, it never prevents construction).
func NewCycle(d Deps) *Cycle {
	return &Cycle{
		db:         d.DB,
		exchange:   d.Exchange,
		sentiment:  d.Sentiment,
		provider:   d.Provider,
		advisor:    d.Advisor,
		consultant: d.Consultant,
		validator:  d.Validator,
		killSwitch: d.KillSwitch,
		broker:     d.Broker,
		audit:      d.Audit,
		metrics:    getOrCreateOrchestratorMetrics(),
		log:        d.Log.With().Str("component", "orchestrator").Logger(),
		cfg:        d.Config,
		bars:       make(map[string]int),
	}
}

// CycleSummary is the §4.1 point-4 return value: aggregate counts for one
// RunOnce invocation plus its wall-time.
type CycleSummary struct {
	Ts                time.Time
	DataErrors        int
	SignalsFired      int
	TradesOpened      int
	TradesClosed      int
	ValidatorRejects  int
	SymbolsProcessed  int
	Duration          time.Duration
}

// nextBar advances and returns the monotonic per-symbol bar index the
// kill-switch and validator cooldown windows are keyed on. Each RunOnce
// call advances every symbol it processes by exactly one bar, independent
// of whether that symbol's pipeline errors out partway through.
func (c *Cycle) nextBar(symbol string) int {
	c.barsMu.Lock()
	defer c.barsMu.Unlock()
	c.bars[symbol]++
	return c.bars[symbol]
}

// RunOnce executes a single cycle across the configured symbol universe
// (§4.1). Per-symbol pipelines run concurrently (§5: "disjoint natural
// keys"); NAV aggregation is serialized after every pipeline completes or
// the cycle-scoped deadline elapses.
func (c *Cycle) RunOnce(ctx context.Context, now time.Time) (CycleSummary, error) {
	start := time.Now()
	summary := CycleSummary{Ts: now}

	cycleTimeout := time.Duration(c.cfg.Trading.CycleInterval) * time.Second
	if cycleTimeout <= 0 {
		cycleTimeout = 5 * time.Minute
	}
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	_ = c.audit.EmitCycle(cycleCtx, db.ActionCycleStart, map[string]interface{}{"ts": now})

	results := make([]symbolResult, len(c.cfg.Trading.Symbols))
	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(maxSymbolConcurrency)

	for i, symbol := range c.cfg.Trading.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			decisionID := uuid.New().String()
			bar := c.nextBar(symbol)

			res := c.processSymbol(gctx, symbol, decisionID, bar, now)

			if gctx.Err() != nil && !res.timedOut {
				res.timedOut = true
				_ = c.audit.EmitCycle(ctx, db.ActionCycleTimeout, map[string]interface{}{"symbol": symbol, "decision_id": decisionID})
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		summary.SymbolsProcessed++
		if res.dataError {
			summary.DataErrors++
			c.metrics.DataErrorsTotal.Inc()
		}
		if res.signalFired {
			summary.SignalsFired++
		}
		if res.tradeOpened {
			summary.TradesOpened++
		}
		if res.tradeClosed {
			summary.TradesClosed++
		}
		if res.validatorRejected {
			summary.ValidatorRejects++
			c.metrics.ValidatorRejects.WithLabelValues(res.rejectReason).Inc()
		}
		outcome := res.outcome()
		c.metrics.SymbolsProcessed.WithLabelValues(res.symbol, outcome).Inc()
	}

	if err := c.aggregateNAV(ctx, now); err != nil {
		c.log.Error().Err(err).Msg("nav aggregation failed")
		c.metrics.CyclesTotal.WithLabelValues("nav_error").Inc()
	} else {
		c.metrics.CyclesTotal.WithLabelValues("ok").Inc()
	}

	summary.Duration = time.Since(start)
	c.metrics.CycleDuration.Observe(summary.Duration.Seconds())
	metrics.RecordOrchestratorLatency(float64(summary.Duration.Milliseconds()))
	c.recordSummary(summary)

	c.log.Info().
		Int("symbols", summary.SymbolsProcessed).
		Int("data_errors", summary.DataErrors).
		Int("signals", summary.SignalsFired).
		Int("opened", summary.TradesOpened).
		Int("closed", summary.TradesClosed).
		Int("rejects", summary.ValidatorRejects).
		Dur("duration", summary.Duration).
		Msg("cycle complete")

	return summary, nil
}

// aggregateNAV computes and persists the single post-cycle NAV snapshot
// (§4.1 point 3, §3 invariant 4/5): cash baseline plus the full realized
// ledger plus mark-to-market on every still-open position.
func (c *Cycle) aggregateNAV(ctx context.Context, now time.Time) error {
	positions, err := c.db.GetAllOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}

	latestClose := make(map[string]float64, len(positions))
	for _, p := range positions {
		candles, err := c.db.RecentCandles(ctx, p.Symbol, c.cfg.Trading.Timeframe, 1)
		if err != nil || len(candles) == 0 {
			continue
		}
		latestClose[p.Symbol] = candles[len(candles)-1].Close
	}

	unrealized := broker.MarkToMarket(positions, latestClose)

	realizedTotal, err := c.db.TotalRealizedPnL(ctx)
	if err != nil {
		return fmt.Errorf("total realized pnl: %w", err)
	}

	prev, err := c.db.LatestNAVSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("latest nav snapshot: %w", err)
	}
	peak := c.cfg.Trading.InitialCapital
	if prev != nil {
		peak = prev.PeakNAV
	}

	snapshot := broker.NAVSnapshot(now, c.cfg.Trading.InitialCapital, realizedTotal, unrealized, peak)
	if err := c.db.InsertNAVSnapshot(ctx, &snapshot); err != nil {
		return fmt.Errorf("insert nav snapshot: %w", err)
	}

	metrics.TotalPnL.Set(snapshot.RealizedPnL + snapshot.UnrealizedPnL)
	metrics.OpenPositions.Set(float64(len(positions)))
	metrics.CurrentDrawdown.Set(snapshot.DDPct / 100)
	for symbol, price := range latestClose {
		metrics.UpdatePositionValue(symbol, price)
	}

	return nil
}

// RunForever calls RunOnce on a fixed schedule until ctx is cancelled
// (§4.1: "calls RunOnce on a fixed schedule until cancelled"; §5: "a
// top-level cancellation signal aborts the outer loop between cycles").
func (c *Cycle) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("orchestrator loop cancelled")
			return
		case t := <-ticker.C:
			if _, err := c.RunOnce(ctx, t.UTC()); err != nil {
				c.log.Error().Err(err).Msg("cycle run failed")
			}
		}
	}
}
