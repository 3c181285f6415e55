package output

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"gopkg.in/yaml.v3"
)

// TAPFormatter writes TAP version 13. The plan line needs the check count,
// so everything is buffered until Flush.
type TAPFormatter struct {
	writer  io.Writer
	results []*runner.TestResult
	summary *runner.Summary
}

// tapDiagnostic is the YAML block under a "not ok" line.
type tapDiagnostic struct {
	Message    string `yaml:"message"`
	StatusCode *int   `yaml:"statusCode,omitempty"`
	Severity   string `yaml:"severity,omitempty"`
	DurationMs int64  `yaml:"durationMs,omitempty"`
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatHeader(version, baseURL string) {}

func (f *TAPFormatter) FormatResult(r *runner.TestResult) {
	f.results = append(f.results, r)
}

func (f *TAPFormatter) FormatSummary(s *runner.Summary) {
	f.summary = s
}

func (f *TAPFormatter) FormatError(err error) {}

func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	w := bufio.NewWriter(f.writer)
	fmt.Fprintf(w, "TAP version 13\n1..%d\n", len(f.results))

	for i, r := range f.results {
		desc := fmt.Sprintf("%s - %s %s", r.Name, r.Method, r.Endpoint)
		if r.Passed() {
			fmt.Fprintf(w, "ok %d - %s\n", i+1, desc)
			continue
		}
		fmt.Fprintf(w, "not ok %d - %s\n", i+1, desc)
		if err := writeDiagnostic(w, r); err != nil {
			return err
		}
	}

	if s := f.summary; s != nil {
		fmt.Fprintf(w, "# %d/%d passed (%.1f%%), %s\n", s.Passed, s.Total, s.Percent, s.Verdict)
	}
	fmt.Fprintln(w)
	return w.Flush()
}

func writeDiagnostic(w io.Writer, r *runner.TestResult) error {
	diag := tapDiagnostic{
		Message:    r.Message,
		StatusCode: r.StatusCode,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.StatusCode == nil {
		diag.Severity = "error"
	}

	data, err := yaml.Marshal(diag)
	if err != nil {
		return fmt.Errorf("encoding tap diagnostic: %w", err)
	}

	fmt.Fprintln(w, "  ---")
	for _, line := range bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n")) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "  ...")
	return nil
}
