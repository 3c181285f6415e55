package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Version  string      `json:"version,omitempty"`
	BaseURL  string      `json:"baseUrl,omitempty"`
	Summary  JSONSummary `json:"summary"`
	Tests    []JSONTest  `json:"tests"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total   int     `json:"total"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Percent float64 `json:"percent"`
	Verdict string  `json:"verdict"`
}

// JSONTest represents a single check result
type JSONTest struct {
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	Endpoint   string         `json:"endpoint"`
	Status     string         `json:"status"`
	Passed     bool           `json:"passed"`
	StatusCode *int           `json:"statusCode,omitempty"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	Duration   float64        `json:"duration"`
}

// JSONFormatter formats smoke results as JSON
type JSONFormatter struct {
	writer  io.Writer
	version string
	baseURL string
	results []JSONTest
	summary *runner.Summary
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		results: make([]JSONTest, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatHeader(version, baseURL string) {
	f.version = version
	f.baseURL = baseURL
}

func (f *JSONFormatter) FormatResult(r *runner.TestResult) {
	f.results = append(f.results, JSONTest{
		Name:       r.Name,
		Method:     r.Method,
		Endpoint:   r.Endpoint,
		Status:     string(r.Status),
		Passed:     r.Passed(),
		StatusCode: r.StatusCode,
		Message:    r.Message,
		Data:       r.Data,
		Duration:   float64(r.Duration.Milliseconds()),
	})
}

func (f *JSONFormatter) FormatSummary(s *runner.Summary) {
	f.summary = s
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual check results
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	summary := f.summary
	if summary == nil {
		// aborted run: summarize whatever was recorded
		var passed int
		for _, t := range f.results {
			if t.Passed {
				passed++
			}
		}
		summary = &runner.Summary{
			Total:   len(f.results),
			Passed:  passed,
			Failed:  len(f.results) - passed,
			Percent: runner.SuccessPercent(passed, len(f.results)),
			Verdict: runner.VerdictFor(passed),
		}
	}

	output := JSONOutput{
		Version: f.version,
		BaseURL: f.baseURL,
		Summary: JSONSummary{
			Total:   summary.Total,
			Passed:  summary.Passed,
			Failed:  summary.Failed,
			Percent: summary.Percent,
			Verdict: string(summary.Verdict),
		},
		Tests:    f.results,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
