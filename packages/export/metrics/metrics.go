// Package metrics collects per-check timings of smoke runs and exports them
// as JSON or as a Prometheus textfile.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
)

// Histogram bounds in microseconds: 1us to 60s, 3 significant digits.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// CheckMetric is the measurement of one executed check
type CheckMetric struct {
	CheckName  string    `json:"check_name"`
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	DurationMs float64   `json:"duration_ms"`
	Passed     bool      `json:"passed"`
	Networked  bool      `json:"networked"`
	Timestamp  time.Time `json:"timestamp"`
}

// FromResult converts a recorded check into a metric. Checks that never
// reached the network (missing token) are marked as not networked.
func FromResult(r *runner.TestResult) *CheckMetric {
	return &CheckMetric{
		CheckName:  r.Name,
		Method:     r.Method,
		Endpoint:   r.Endpoint,
		StatusCode: r.Code(),
		DurationMs: float64(r.Duration.Microseconds()) / 1000,
		Passed:     r.Passed(),
		Networked:  r.Duration > 0 || r.StatusCode != nil,
		Timestamp:  time.Now(),
	}
}

// AggregateMetrics summarizes every check recorded by a Collector
type AggregateMetrics struct {
	TotalChecks     int64                      `json:"total_checks"`
	SuccessCount    int64                      `json:"success_count"`
	FailureCount    int64                      `json:"failure_count"`
	SuccessPercent  float64                    `json:"success_percent"`
	TotalDurationMs float64                    `json:"total_duration_ms"`
	MinDurationMs   float64                    `json:"min_duration_ms"`
	MaxDurationMs   float64                    `json:"max_duration_ms"`
	AvgDurationMs   float64                    `json:"avg_duration_ms"`
	P50DurationMs   float64                    `json:"p50_duration_ms"`
	P95DurationMs   float64                    `json:"p95_duration_ms"`
	P99DurationMs   float64                    `json:"p99_duration_ms"`
	StatusCodes     map[int]int64              `json:"status_codes"`
	ByCheck         map[string]*CheckAggregate `json:"by_check"`
}

// CheckAggregate summarizes one check across runs (watch mode records several)
type CheckAggregate struct {
	Name          string  `json:"name"`
	Method        string  `json:"method"`
	Endpoint      string  `json:"endpoint"`
	Runs          int64   `json:"runs"`
	Samples       int64   `json:"samples"` // runs that made a request
	SuccessCount  int64   `json:"success_count"`
	FailureCount  int64   `json:"failure_count"`
	LastPassed    bool    `json:"last_passed"`
	LastStatus    int     `json:"last_status"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MinDurationMs float64 `json:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export writes the aggregated metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// ExportSingle receives every check metric as it is recorded
	ExportSingle(metric *CheckMetric) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Collector collects check metrics and feeds them to exporters
type Collector struct {
	mu        sync.Mutex
	metrics   []*CheckMetric
	aggregate *AggregateMetrics
	histogram *hdrhistogram.Histogram
	exporters []Exporter
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		metrics:   make([]*CheckMetric, 0),
		exporters: exporters,
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
		aggregate: &AggregateMetrics{
			StatusCodes: make(map[int]int64),
			ByCheck:     make(map[string]*CheckAggregate),
		},
	}
}

// Observe records a runner result; it satisfies runner.Observer.
func (c *Collector) Observe(r *runner.TestResult) {
	c.Record(FromResult(r))
}

// Record records a check metric
func (c *Collector) Record(m *CheckMetric) {
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.updateAggregate(m)
	c.mu.Unlock()

	for _, exp := range c.exporters {
		_ = exp.ExportSingle(m)
	}
}

// Metrics returns the recorded metrics in order.
func (c *Collector) Metrics() []*CheckMetric {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*CheckMetric(nil), c.metrics...)
}

func (c *Collector) updateAggregate(m *CheckMetric) {
	agg := c.aggregate
	agg.TotalChecks++
	if m.Passed {
		agg.SuccessCount++
	} else {
		agg.FailureCount++
	}
	agg.SuccessPercent = runner.SuccessPercent(int(agg.SuccessCount), int(agg.TotalChecks))

	if m.StatusCode != 0 {
		agg.StatusCodes[m.StatusCode]++
	}

	ca, ok := agg.ByCheck[m.CheckName]
	if !ok {
		ca = &CheckAggregate{Name: m.CheckName, Method: m.Method, Endpoint: m.Endpoint}
		agg.ByCheck[m.CheckName] = ca
	}
	ca.Runs++
	ca.LastPassed = m.Passed
	ca.LastStatus = m.StatusCode
	if m.Passed {
		ca.SuccessCount++
	} else {
		ca.FailureCount++
	}

	// latency statistics only cover checks that made a request
	if !m.Networked {
		return
	}

	latencyUs := int64(m.DurationMs * 1000)
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}
	_ = c.histogram.RecordValue(latencyUs)

	agg.TotalDurationMs += m.DurationMs
	if c.histogram.TotalCount() == 1 {
		agg.MinDurationMs = m.DurationMs
		agg.MaxDurationMs = m.DurationMs
	} else {
		if m.DurationMs < agg.MinDurationMs {
			agg.MinDurationMs = m.DurationMs
		}
		if m.DurationMs > agg.MaxDurationMs {
			agg.MaxDurationMs = m.DurationMs
		}
	}
	agg.AvgDurationMs = agg.TotalDurationMs / float64(c.histogram.TotalCount())

	ca.Samples++
	if ca.Samples == 1 || m.DurationMs < ca.MinDurationMs {
		ca.MinDurationMs = m.DurationMs
	}
	if m.DurationMs > ca.MaxDurationMs {
		ca.MaxDurationMs = m.DurationMs
	}
	ca.AvgDurationMs = (ca.AvgDurationMs*float64(ca.Samples-1) + m.DurationMs) / float64(ca.Samples)
}

// GetAggregate returns the aggregated metrics with current percentiles
func (c *Collector) GetAggregate() *AggregateMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.histogram.TotalCount() > 0 {
		c.aggregate.P50DurationMs = float64(c.histogram.ValueAtQuantile(50)) / 1000
		c.aggregate.P95DurationMs = float64(c.histogram.ValueAtQuantile(95)) / 1000
		c.aggregate.P99DurationMs = float64(c.histogram.ValueAtQuantile(99)) / 1000
	}
	return c.aggregate
}

// Flush exports the aggregated metrics to every exporter
func (c *Collector) Flush() error {
	aggregate := c.GetAggregate()
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(aggregate); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
