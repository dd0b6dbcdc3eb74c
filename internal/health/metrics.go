package health

import "github.com/prometheus/client_golang/prometheus"

// #region collectors

var (
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proximity_cycles_total",
		Help: "Scheduling cycles by outcome",
	}, []string{"outcome"})
	CycleDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "proximity_cycle_duration_seconds",
		Help:    "Scheduling cycle duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	EscalationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proximity_escalations_total",
		Help: "Safe-mode escalations by reason",
	}, []string{"reason"})
	MonitoredRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "proximity_monitored_regions",
		Help: "Currently installed platform regions",
	})
	RegionInstallFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proximity_region_install_failures_total",
		Help: "Per-region platform installation failures",
	})
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDurationSeconds)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(MonitoredRegions)
	prometheus.MustRegister(RegionInstallFailures)
}

// #endregion collectors
