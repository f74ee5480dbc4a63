package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SweeperMetrics 资金归集相关的业务指标
type SweeperMetrics struct {
	SweepAttemptsTotal      *prometheus.CounterVec
	SweepSuccessTotal       *prometheus.CounterVec
	SweepFailuresTotal      *prometheus.CounterVec // label stage: resolve/balance/gas/sweep/persist
	RetryScheduledTotal     *prometheus.CounterVec
	DepositFailedTotal      *prometheus.CounterVec
	GasTopUpTotal           *prometheus.CounterVec
	SweptAmountTotal        *prometheus.CounterVec
	UnresolvedAddressTotal  *prometheus.CounterVec
	QueueFailuresTotal      prometheus.Counter
	NotifyFailuresTotal     prometheus.Counter
	ConsecutiveFailures     prometheus.Gauge
	SweeperJobDuration      *prometheus.HistogramVec
	SweeperCycleDuration    prometheus.Histogram
	LastSuccessfulCycleTime prometheus.Gauge
}

// NewSweeperMetrics 在指定的 Registerer 上注册指标
// 生产环境传 prometheus.DefaultRegisterer，测试传 prometheus.NewRegistry()
func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	factory := promauto.With(reg)

	return &SweeperMetrics{
		SweepAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_attempts_total",
			Help: "Total number of sweep attempts",
		}, []string{"currency"}),
		SweepSuccessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_success_total",
			Help: "Total number of deposits swept or completed",
		}, []string{"currency"}),
		SweepFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_failures_total",
			Help: "Total number of failed sweep attempts by stage",
		}, []string{"currency", "stage"}),
		RetryScheduledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_retry_scheduled_total",
			Help: "Total number of retries scheduled",
		}, []string{"currency"}),
		DepositFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_deposit_failed_total",
			Help: "Deposits moved to the terminal FAILED state",
		}, []string{"currency"}),
		GasTopUpTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_gas_topup_total",
			Help: "Number of gas top-ups sent from the master wallet",
		}, []string{"currency"}),
		SweptAmountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_swept_amount_total",
			Help: "Total token amount swept into the master wallet",
		}, []string{"currency"}),
		UnresolvedAddressTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_sweeper_unresolved_address_total",
			Help: "Deposits skipped because no deposit address matches",
		}, []string{"currency"}),
		QueueFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_sweeper_queue_failures_total",
			Help: "Failed pending-sweep queue queries",
		}),
		NotifyFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_sweeper_notify_failures_total",
			Help: "Failed real-time notification publishes",
		}),
		ConsecutiveFailures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_sweeper_consecutive_failures",
			Help: "Current consecutive cycle failures",
		}),
		SweeperJobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_sweeper_job_duration_seconds",
			Help:    "Duration of a single deposit sweep",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"currency"}),
		SweeperCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_sweeper_cycle_duration_seconds",
			Help:    "Duration of a sweep cycle",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccessfulCycleTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_sweeper_last_successful_cycle_timestamp_seconds",
			Help: "Unix time of the last successful sweep cycle",
		}),
	}
}
