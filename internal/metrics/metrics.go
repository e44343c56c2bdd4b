package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "payrecon"

// Metrics 对账相关指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 对账
	ReconcileTotal     *prometheus.CounterVec
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteActionsTotal *prometheus.CounterVec

	// 过期扫描
	SweepRunsTotal      prometheus.Counter
	SweepCancelledTotal prometheus.Counter
	SweepNextDelay      prometheus.Gauge
	SweepLastRun        prometheus.Gauge
}

// New 创建指标集合，注册到独立的 Registry
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReconcileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Reconciliation passes by entry point and outcome",
			},
			[]string{"entry", "outcome"},
		),
		RemoteCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "psp",
				Name:      "calls_total",
				Help:      "PSP API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RemoteActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "psp",
				Name:      "actions_total",
				Help:      "Orchestrated remote ship/cancel decisions by outcome",
			},
			[]string{"action", "outcome"},
		),
		SweepRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "expiry",
				Name:      "sweeps_total",
				Help:      "Completed expiry sweeps",
			},
		),
		SweepCancelledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "expiry",
				Name:      "cancelled_orders_total",
				Help:      "Orders cancelled by the expiry sweep",
			},
		),
		SweepNextDelay: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "expiry",
				Name:      "next_delay_seconds",
				Help:      "Delay until the next scheduled expiry sweep",
			},
		),
		SweepLastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "expiry",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed expiry sweep",
			},
		),
	}
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP 记录 HTTP 请求
func (m *Metrics) ObserveHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveReconcile 记录一次对账结果
func (m *Metrics) ObserveReconcile(entry, outcome string) {
	m.ReconcileTotal.WithLabelValues(entry, outcome).Inc()
}

// ObserveRemoteCall 记录一次远端调用
func (m *Metrics) ObserveRemoteCall(operation, outcome string) {
	m.RemoteCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveRemoteAction 记录一次远端动作编排结果
func (m *Metrics) ObserveRemoteAction(action, outcome string) {
	m.RemoteActionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveSweep 记录一次过期扫描
func (m *Metrics) ObserveSweep(cancelled int, nextDelay time.Duration) {
	m.SweepRunsTotal.Inc()
	m.SweepCancelledTotal.Add(float64(cancelled))
	m.SweepNextDelay.Set(nextDelay.Seconds())
	m.SweepLastRun.SetToCurrentTime()
}
