package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrchestratorMetrics holds the cycle-level Prometheus series that don't fit
// the generic per-agent/per-trade helpers in internal/metrics. Grounded on
// the teacher's cmd/orchestrator/http.go HealthCheckMetrics: a package-level
// sync.Once guards registration so repeated NewCycle calls in tests never
// panic on a duplicate promauto registration.
type OrchestratorMetrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	SymbolsProcessed   *prometheus.CounterVec
	DataErrorsTotal    prometheus.Counter
	ValidatorRejects   *prometheus.CounterVec
	KillSwitchTrips    *prometheus.CounterVec
}

var (
	orchestratorMetrics     *OrchestratorMetrics
	orchestratorMetricsOnce sync.Once
)

// getOrCreateOrchestratorMetrics returns the process-wide singleton,
// constructing it on first call.
func getOrCreateOrchestratorMetrics() *OrchestratorMetrics {
	orchestratorMetricsOnce.Do(func() {
		orchestratorMetrics = &OrchestratorMetrics{
			CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "papertrader_cycles_total",
				Help: "Total number of orchestrator cycles run, by outcome",
			}, []string{"outcome"}),
			CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "papertrader_cycle_duration_seconds",
				Help:    "Wall-clock duration of a full RunOnce cycle",
				Buckets: prometheus.DefBuckets,
			}),
			SymbolsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "papertrader_cycle_symbols_total",
				Help: "Per-symbol pipeline outcomes across all cycles",
			}, []string{"symbol", "outcome"}),
			DataErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "papertrader_cycle_data_errors_total",
				Help: "Ingest/feature data-quality skips across all cycles",
			}),
			ValidatorRejects: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "papertrader_cycle_validator_rejects_total",
				Help: "Validator rejections by reason code",
			}, []string{"reason"}),
			KillSwitchTrips: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "papertrader_cycle_kill_switch_trips_total",
				Help: "Kill-switch trips by symbol",
			}, []string{"symbol"}),
		}
	})
	return orchestratorMetrics
}
