package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(name string, passed bool, code int, d time.Duration) *runner.TestResult {
	r := &runner.TestResult{
		Name:     name,
		Method:   "GET",
		Endpoint: "/" + name,
		Status:   runner.StatusFail,
		Duration: d,
	}
	if passed {
		r.Status = runner.StatusPass
	}
	if code != 0 {
		r.StatusCode = &code
	}
	return r
}

func TestFromResult(t *testing.T) {
	m := FromResult(result("health", true, 200, 1500*time.Microsecond))
	assert.Equal(t, "health", m.CheckName)
	assert.Equal(t, 200, m.StatusCode)
	assert.Equal(t, 1.5, m.DurationMs)
	assert.True(t, m.Networked)

	short := FromResult(result("cases", false, 0, 0))
	assert.False(t, short.Networked)
	assert.Equal(t, 0, short.StatusCode)
}

func TestCollector_Aggregate(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.Observe(result("health", true, 200, time.Duration(i)*time.Millisecond))
	}
	c.Observe(result("cases", false, 0, 0))

	agg := c.GetAggregate()
	assert.Equal(t, int64(101), agg.TotalChecks)
	assert.Equal(t, int64(100), agg.SuccessCount)
	assert.Equal(t, int64(1), agg.FailureCount)
	assert.Equal(t, 99.0, agg.SuccessPercent)
	assert.Equal(t, int64(100), agg.StatusCodes[200])
	assert.NotContains(t, agg.StatusCodes, 0)

	assert.Equal(t, 1.0, agg.MinDurationMs)
	assert.Equal(t, 100.0, agg.MaxDurationMs)
	assert.InDelta(t, 50.5, agg.AvgDurationMs, 0.001)
	assert.InDelta(t, 50, agg.P50DurationMs, 0.5)
	assert.InDelta(t, 95, agg.P95DurationMs, 0.5)
	assert.InDelta(t, 99, agg.P99DurationMs, 0.5)

	health := agg.ByCheck["health"]
	require.NotNil(t, health)
	assert.Equal(t, int64(100), health.Runs)
	assert.Equal(t, int64(100), health.Samples)
	assert.Equal(t, 1.0, health.MinDurationMs)

	cases := agg.ByCheck["cases"]
	require.NotNil(t, cases)
	assert.Equal(t, int64(1), cases.Runs)
	assert.Equal(t, int64(0), cases.Samples)
	assert.False(t, cases.LastPassed)

	assert.Len(t, c.Metrics(), 101)
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "reports", "metrics.json")
	exp := NewJSONExporter(WithJSONWriter(&buf), WithJSONFile(path), WithJSONMetadata("v1.2.3", "http://api.test"))
	c := NewCollector(exp)

	c.Observe(result("health", true, 200, 10*time.Millisecond))
	c.Observe(result("login", false, 401, 20*time.Millisecond))
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "v1.2.3", out.Metadata.Version)
	assert.Equal(t, "http://api.test", out.Metadata.BaseURL)
	assert.Equal(t, int64(2), out.Summary.TotalChecks)
	assert.Equal(t, 50.0, out.Summary.SuccessPercent)
	require.Len(t, out.Checks, 2)
	assert.Equal(t, "login", out.Checks[1].CheckName)
	assert.Equal(t, []string{"login"}, out.FailedChecks)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, buf.String(), string(data))
}

func TestPrometheusExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portalsmoke.prom")
	exp := NewPrometheusExporter(WithPrometheusFile(path))
	c := NewCollector(exp)

	c.Observe(result("health", true, 200, 10*time.Millisecond))
	c.Observe(result("register", false, 409, 5*time.Millisecond))
	c.Observe(result("cases", false, 0, 0))
	require.NoError(t, c.Flush())

	assert.Equal(t, 1.0, testutil.ToFloat64(exp.checksTotal.WithLabelValues("health", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.checksTotal.WithLabelValues("register", "fail")))
	assert.Equal(t, 0.0, testutil.ToFloat64(exp.checkUp.WithLabelValues("register", "GET", "/register")))
	assert.Equal(t, 409.0, testutil.ToFloat64(exp.checkStatus.WithLabelValues("register")))
	assert.Equal(t, 33.3, testutil.ToFloat64(exp.successRatio))
	assert.Equal(t, 2, testutil.CollectAndCount(exp.checkDuration), "short-circuited checks are not timed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `portalsmoke_checks_total{check="health",result="pass"} 1`)
	assert.Contains(t, text, `portalsmoke_check_status_code{check="register"} 409`)
	assert.Contains(t, text, `portalsmoke_latency_milliseconds{quantile="0.95"}`)
	assert.Contains(t, text, "# TYPE portalsmoke_check_duration_seconds histogram")
}

func TestPrometheusExporter_Namespace(t *testing.T) {
	exp := NewPrometheusExporter(WithPrometheusNamespace("alliance"))
	require.NoError(t, exp.ExportSingle(FromResult(result("health", true, 200, time.Millisecond))))

	families, err := exp.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	for _, f := range families {
		assert.Regexp(t, `^alliance_`, f.GetName())
	}
}
