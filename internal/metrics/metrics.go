package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exchange"

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced       *prometheus.CounterVec
	ordersRejected     *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	versionConflicts   prometheus.Counter
	batchSettled       prometheus.Histogram
	provisioning       *prometheus.CounterVec
	remediations       *prometheus.CounterVec
	backgroundTasks    *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Orders accepted by placement, by type and side.",
		}, []string{"type", "side"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Placements and cancellations rejected, by reason.",
		}, []string{"reason"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "results_total",
			Help:      "Settlement attempts by outcome.",
		}, []string{"outcome"}),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Duration of one order settlement transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "version_conflicts_total",
			Help:      "Optimistic version conflicts that caused a retry.",
		}),
		batchSettled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "batch_settled_orders",
			Help:      "Orders settled per reference price evaluation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "attempts_total",
			Help:      "Portfolio provisioning attempts by outcome.",
		}, []string{"outcome"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remediation",
			Name:      "enqueued_total",
			Help:      "Failures escalated to the remediation queue, by kind.",
		}, []string{"kind"}),
		backgroundTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workers",
			Name:      "tasks_total",
			Help:      "Background tasks completed, by task and outcome.",
		}, []string{"task", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Outbound notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersPlaced,
		m.ordersRejected,
		m.settlements,
		m.settlementDuration,
		m.versionConflicts,
		m.batchSettled,
		m.provisioning,
		m.remediations,
		m.backgroundTasks,
		m.notifications,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderPlaced(orderType, side string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(orderType, side).Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SettlementResult(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.settlementDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *Metrics) BatchSettled(count int) {
	if m == nil {
		return
	}
	m.batchSettled.Observe(float64(count))
}

func (m *Metrics) ProvisioningAttempt(outcome string) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RemediationEnqueued(kind string) {
	if m == nil {
		return
	}
	m.remediations.WithLabelValues(kind).Inc()
}

func (m *Metrics) BackgroundTask(task string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backgroundTasks.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
