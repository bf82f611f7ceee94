package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/risk"
)

// equityWindowDays is the trailing window used for Sharpe, VaR and
// drawdown — long enough to smooth single-cycle noise, short enough that
// a regime shift shows up within a trading day.
const equityWindowDays = 30

// Updater periodically recomputes portfolio gauges from the database so
// Prometheus reflects the ledger's current state rather than whatever a
// single cycle last happened to emit inline.
type Updater struct {
	db         *db.DB
	calculator *risk.Calculator
	interval   time.Duration
	stopCh     chan struct{}
}

// NewUpdater creates a new metrics updater backed by the shared pool.
func NewUpdater(pool *pgxpool.Pool, database *db.DB, interval time.Duration) *Updater {
	return &Updater{
		db:         database,
		calculator: risk.NewCalculatorWithPool(pool),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the metrics update loop.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updatePerformanceMetrics(ctx)
	u.updatePositionMetrics(ctx)
	u.updateDatabaseMetrics()

	log.Debug().Msg("Metrics updated successfully")
}

// updatePerformanceMetrics recomputes P&L, win rate, drawdown, returns,
// Sharpe and VaR from the trade ledger and equity curve through the risk
// calculator instead of re-deriving them with ad hoc SQL here.
func (u *Updater) updatePerformanceMetrics(ctx context.Context) {
	if totalPnL, err := u.db.TotalRealizedPnL(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to fetch total realized P&L")
	} else {
		TotalPnL.Set(totalPnL)
	}

	if wr, err := u.calculator.CalculateWinRate(ctx, ""); err != nil {
		log.Error().Err(err).Msg("Failed to calculate win rate")
	} else {
		WinRate.Set(wr.WinRate)
		if wr.AvgLoss > 0 {
			RiskRewardRatio.Set(wr.AvgWin / wr.AvgLoss)
		}
	}

	u.updateReturnMetrics(ctx)

	if currentDD, _, _, err := u.calculator.CalculateDrawdownFromDB(ctx, equityWindowDays); err != nil {
		log.Error().Err(err).Msg("Failed to calculate drawdown")
	} else {
		CurrentDrawdown.Set(currentDD)
	}

	if sharpe, err := u.calculator.CalculateSharpeFromEquity(ctx, equityWindowDays, 0); err != nil {
		log.Debug().Err(err).Msg("Sharpe ratio unavailable")
	} else {
		SharpeRatio.Set(sharpe)
	}

	if varValue, cvarValue, err := u.calculator.CalculateVaRFromEquity(ctx, equityWindowDays, 0.95); err != nil {
		log.Debug().Err(err).Msg("VaR unavailable")
	} else {
		ValueAtRisk95.Set(varValue)
		ConditionalVaR95.Set(cvarValue)
	}
}

// updateReturnMetrics sets daily/weekly/monthly returns as realized P&L
// over the period divided by the latest NAV, the only capital baseline
// the ledger actually records.
func (u *Updater) updateReturnMetrics(ctx context.Context) {
	latest, err := u.db.LatestNAVSnapshot(ctx)
	if err != nil || latest == nil || latest.NAVUsd == 0 {
		return
	}

	periods := []struct {
		since time.Time
		gauge interface{ Set(float64) }
	}{
		{time.Now().UTC().Add(-24 * time.Hour), DailyReturn},
		{time.Now().UTC().Add(-7 * 24 * time.Hour), WeeklyReturn},
		{time.Now().UTC().Add(-30 * 24 * time.Hour), MonthlyReturn},
	}

	for _, p := range periods {
		pnl, err := u.db.RealizedPnLSince(ctx, p.since)
		if err != nil {
			log.Error().Err(err).Time("since", p.since).Msg("Failed to sum realized P&L for period")
			continue
		}
		p.gauge.Set(pnl / latest.NAVUsd)
	}
}

// updatePositionMetrics refreshes open-position count and per-symbol
// notional from the positions table, where a row's mere existence means
// open — there is no status column to filter on.
func (u *Updater) updatePositionMetrics(ctx context.Context) {
	positions, err := u.db.GetAllOpenPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch open positions")
		return
	}

	OpenPositions.Set(float64(len(positions)))
	for _, p := range positions {
		UpdatePositionValue(p.Symbol, p.Qty*p.AvgPrice)
	}
}

// updateDatabaseMetrics updates database connection pool metrics.
func (u *Updater) updateDatabaseMetrics() {
	pool := u.db.Pool()
	if pool == nil {
		return
	}
	stat := pool.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
