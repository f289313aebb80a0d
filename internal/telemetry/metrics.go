package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "foundry"

// Metrics — Prometheus-метрики оркестратора.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без
// метрик (например, в тестах), просто ничего не пишут.
type Metrics struct {
	jobsSubmitted        prometheus.Counter
	jobsRejected         prometheus.Counter
	jobsDispatched       prometheus.Counter
	jobsFinished         *prometheus.CounterVec
	reservationConflicts prometheus.Counter
	queueDepth           prometheus.Gauge
	jobsProcessing       prometheus.Gauge
	workerLoad           *prometheus.GaugeVec
	stageDuration        *prometheus.HistogramVec
	emergencyHalts       prometheus.Counter
	brokerConnected      prometheus.Gauge
	brokerReconnects     *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// Для глобального registry передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by Submit",
		}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Job specs rejected as invalid",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Jobs moved from the queue to processing",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"status"}),
		reservationConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_conflicts_total",
			Help:      "Worker reservation batches rolled back",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the queue",
		}),
		jobsProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_processing",
			Help:      "Jobs currently in the pipeline",
		}),
		workerLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_load",
			Help:      "Current load per worker",
		}, []string{"worker"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage execution time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		emergencyHalts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_halts_total",
			Help:      "Emergency halts executed",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the AMQP channel is usable",
		}),
		brokerReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_reconnects_total",
			Help:      "AMQP connection and channel recoveries",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method and status code",
		}, []string{"method", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.jobsSubmitted,
			m.jobsRejected,
			m.jobsDispatched,
			m.jobsFinished,
			m.reservationConflicts,
			m.queueDepth,
			m.jobsProcessing,
			m.workerLoad,
			m.stageDuration,
			m.emergencyHalts,
			m.brokerConnected,
			m.brokerReconnects,
			m.httpRequests,
		)
	}

	return m
}

// JobSubmitted учитывает принятый job.
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

// JobRejected учитывает отклонённый spec.
func (m *Metrics) JobRejected() {
	if m == nil {
		return
	}
	m.jobsRejected.Inc()
}

// JobDispatched учитывает job, переданный в pipeline.
func (m *Metrics) JobDispatched() {
	if m == nil {
		return
	}
	m.jobsDispatched.Inc()
}

// JobFinished учитывает терминальный статус.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

// ReservationConflict учитывает откат резервирования.
func (m *Metrics) ReservationConflict() {
	if m == nil {
		return
	}
	m.reservationConflicts.Inc()
}

// SetQueueDepth выставляет глубину очереди.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetProcessing выставляет количество job в pipeline.
func (m *Metrics) SetProcessing(n int) {
	if m == nil {
		return
	}
	m.jobsProcessing.Set(float64(n))
}

// SetWorkerLoad выставляет нагрузку worker'а.
func (m *Metrics) SetWorkerLoad(workerID string, load int) {
	if m == nil {
		return
	}
	m.workerLoad.WithLabelValues(workerID).Set(float64(load))
}

// ObserveStage записывает длительность стадии.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// EmergencyHalt учитывает emergency halt.
func (m *Metrics) EmergencyHalt() {
	if m == nil {
		return
	}
	m.emergencyHalts.Inc()
}

// SetBrokerConnected отражает доступность AMQP канала.
func (m *Metrics) SetBrokerConnected(ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.brokerConnected.Set(v)
}

// BrokerReconnect учитывает восстановление соединения ("connection")
// или только канала ("channel").
func (m *Metrics) BrokerReconnect(scope string) {
	if m == nil {
		return
	}
	m.brokerReconnects.WithLabelValues(scope).Inc()
}

// HTTPRequest учитывает обработанный запрос API.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
