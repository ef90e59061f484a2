// Package metrics exposes Prometheus instrumentation for crate transfers,
// operations and server reachability.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	cratesPushed      *prometheus.CounterVec
	crateBytesPushed  *prometheus.CounterVec
	cratesPulled      *prometheus.CounterVec
	reservations      *prometheus.CounterVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	serverReachable   *prometheus.GaugeVec
	stagingRemoved    prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
		instance.register(prometheus.DefaultRegisterer)
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		cratesPushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "core",
				Name:      "crates_pushed_total",
				Help:      "Total crates pushed by store and result",
			},
			[]string{"store", "result"},
		),
		crateBytesPushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "core",
				Name:      "crate_bytes_pushed_total",
				Help:      "Total crate bytes pushed by store",
			},
			[]string{"store"},
		),
		cratesPulled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "core",
				Name:      "crates_pulled_total",
				Help:      "Total crate pulls by store and result",
			},
			[]string{"store", "result"},
		),
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "core",
				Name:      "reservations_total",
				Help:      "Total storage reservations by result",
			},
			[]string{"result"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "operations",
				Name:      "completed_total",
				Help:      "Total completed operations by type and result",
			},
			[]string{"type", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stasis",
				Subsystem: "operations",
				Name:      "duration_seconds",
				Help:      "Operation duration by type",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
			},
			[]string{"type"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stasis",
				Subsystem: "operations",
				Name:      "active",
				Help:      "Currently running operations by type",
			},
			[]string{"type"},
		),
		serverReachable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stasis",
				Subsystem: "server",
				Name:      "reachable",
				Help:      "Whether the server answered the last ping (1) or not (0)",
			},
			[]string{"server"},
		),
		stagingRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stasis",
				Subsystem: "staging",
				Name:      "files_removed_total",
				Help:      "Total stale staging files removed by cleanup",
			},
		),
	}
}

func (m *Metrics) register(registerer prometheus.Registerer) {
	registerer.MustRegister(
		m.cratesPushed,
		m.crateBytesPushed,
		m.cratesPulled,
		m.reservations,
		m.operations,
		m.operationDuration,
		m.activeOperations,
		m.serverReachable,
		m.stagingRemoved,
	)
}

func (m *Metrics) RecordPush(store string, bytes int64, err error) {
	if err != nil {
		m.cratesPushed.WithLabelValues(store, "failure").Inc()
		return
	}
	m.cratesPushed.WithLabelValues(store, "success").Inc()
	m.crateBytesPushed.WithLabelValues(store).Add(float64(bytes))
}

// RecordPull records one pull attempt; result is one of success, missing or failure.
func (m *Metrics) RecordPull(store, result string) {
	m.cratesPulled.WithLabelValues(store, result).Inc()
}

func (m *Metrics) RecordReservation(accepted bool) {
	if accepted {
		m.reservations.WithLabelValues("accepted").Inc()
	} else {
		m.reservations.WithLabelValues("rejected").Inc()
	}
}

func (m *Metrics) OperationStarted(operation string) {
	m.activeOperations.WithLabelValues(operation).Inc()
}

func (m *Metrics) OperationCompleted(operation string, duration time.Duration, err error) {
	m.activeOperations.WithLabelValues(operation).Dec()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())

	result := "success"
	if err != nil {
		result = "failure"
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ServerReachable(server string, reachable bool) {
	value := 0.0
	if reachable {
		value = 1.0
	}
	m.serverReachable.WithLabelValues(server).Set(value)
}

func (m *Metrics) StagingFilesRemoved(count int) {
	m.stagingRemoved.Add(float64(count))
}
