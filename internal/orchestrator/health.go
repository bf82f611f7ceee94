package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/paper-trader/daemon/internal/db"
	"github.com/paper-trader/daemon/internal/risk"
)

// LastSummary returns the most recently completed cycle's summary and
// whether one has run yet. Safe for concurrent use by the health handler
// while RunOnce is in flight.
func (c *Cycle) LastSummary() (CycleSummary, bool) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.last, c.hasRun
}

// recordSummary stashes the cycle summary for LastSummary, called once per
// RunOnce after the pipeline and NAV aggregation both complete.
func (c *Cycle) recordSummary(s CycleSummary) {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	c.last = s
	c.hasRun = true
}

// healthReport is the /healthz response body (§7: "last cycle timestamp,
// error counts, and open-position count").
type healthReport struct {
	Status          string  `json:"status"`
	LastCycleTs     string  `json:"last_cycle_ts,omitempty"`
	LastCycleErrors int     `json:"last_cycle_data_errors"`
	OpenPositions   int     `json:"open_positions"`
	NAV             float64 `json:"nav,omitempty"`
	DrawdownPct     float64 `json:"drawdown_pct,omitempty"`
	Sharpe30d       float64 `json:"sharpe_30d,omitempty"`
	WinRate         float64 `json:"win_rate,omitempty"`
}

// HealthHandler serves the §7 status surface: last cycle outcome plus the
// portfolio performance read the risk calculator already knows how to
// produce from the nav_snapshots/trades tables, so the daemon's one HTTP
// surface doesn't need its own aggregation queries.
func HealthHandler(cycle *Cycle, database *db.DB, calc *risk.Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := healthReport{Status: "healthy"}

		if summary, ok := cycle.LastSummary(); ok {
			report.LastCycleTs = summary.Ts.UTC().Format(time.RFC3339)
			report.LastCycleErrors = summary.DataErrors
		}

		if positions, err := database.GetAllOpenPositions(ctx); err == nil {
			report.OpenPositions = len(positions)
		}

		if prev, err := database.LatestNAVSnapshot(ctx); err == nil && prev != nil {
			report.NAV = prev.NAVUsd
			report.DrawdownPct = prev.DDPct
		}

		if sharpe, err := calc.CalculateSharpeFromEquity(ctx, 30, 0); err == nil {
			report.Sharpe30d = sharpe
		}

		if wr, err := calc.CalculateWinRate(ctx, ""); err == nil {
			report.WinRate = wr.WinRate
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(report)
	}
}
