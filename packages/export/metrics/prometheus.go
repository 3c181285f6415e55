package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every exported Prometheus metric.
const DefaultNamespace = "portalsmoke"

// PrometheusExporter exposes smoke metrics through a private Prometheus
// registry and writes them as a node_exporter textfile.
type PrometheusExporter struct {
	registry  *prometheus.Registry
	filePath  string
	namespace string

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	checkUp       *prometheus.GaugeVec
	checkStatus   *prometheus.GaugeVec
	successRatio  prometheus.Gauge
	latency       *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusFile sets the textfile Export writes to
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

// WithPrometheusNamespace overrides the metric name prefix
func WithPrometheusNamespace(ns string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.namespace = ns
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{
		registry:  prometheus.NewRegistry(),
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      "checks_total",
		Help:      "Executed smoke checks by result",
	}, []string{"check", "result"})

	p.checkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      "check_duration_seconds",
		Help:      "Duration of smoke check requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"check", "method", "endpoint"})

	p.checkUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "check_up",
		Help:      "Whether the last execution of a check passed (1) or failed (0)",
	}, []string{"check", "method", "endpoint"})

	p.checkStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "check_status_code",
		Help:      "HTTP status code of the last execution of a check (0 when no response)",
	}, []string{"check"})

	p.successRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "success_percent",
		Help:      "Percentage of passing checks",
	})

	p.latency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "latency_milliseconds",
		Help:      "Check latency percentiles in milliseconds",
	}, []string{"quantile"})

	p.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last exported run",
	})

	p.registry.MustRegister(
		p.checksTotal, p.checkDuration, p.checkUp, p.checkStatus,
		p.successRatio, p.latency, p.lastRun,
	)
	return p
}

// Registry returns the registry the exporter's collectors live in.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// ExportSingle records a single check metric
func (p *PrometheusExporter) ExportSingle(m *CheckMetric) error {
	result := "fail"
	up := 0.0
	if m.Passed {
		result = "pass"
		up = 1
	}

	p.checksTotal.WithLabelValues(m.CheckName, result).Inc()
	p.checkUp.WithLabelValues(m.CheckName, m.Method, m.Endpoint).Set(up)
	p.checkStatus.WithLabelValues(m.CheckName).Set(float64(m.StatusCode))
	if m.Networked {
		p.checkDuration.WithLabelValues(m.CheckName, m.Method, m.Endpoint).Observe(m.DurationMs / 1000)
	}
	return nil
}

// Export sets the run-level gauges and writes the textfile when configured
func (p *PrometheusExporter) Export(metrics *AggregateMetrics) error {
	p.successRatio.Set(metrics.SuccessPercent)
	for q, v := range map[float64]float64{
		0.5:  metrics.P50DurationMs,
		0.95: metrics.P95DurationMs,
		0.99: metrics.P99DurationMs,
	} {
		p.latency.WithLabelValues(strconv.FormatFloat(q, 'f', -1, 64)).Set(v)
	}
	p.lastRun.Set(float64(time.Now().Unix()))

	if p.filePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(p.filePath, p.registry); err != nil {
		return fmt.Errorf("failed to write prometheus textfile: %w", err)
	}
	return nil
}

// Close is a no-op; the textfile is written by Export.
func (p *PrometheusExporter) Close() error {
	return nil
}
