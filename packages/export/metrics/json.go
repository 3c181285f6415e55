package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONExporter writes one JSON document per run: run metadata, the
// aggregate and every check metric in execution order.
type JSONExporter struct {
	mu        sync.Mutex
	writer    io.Writer
	filePath  string
	version   string
	baseURL   string
	checks    []*CheckMetric
	startedAt time.Time
}

type JSONOption func(*JSONExporter)

func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile writes the document to path, creating parent directories.
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

func WithJSONMetadata(version, baseURL string) JSONOption {
	return func(j *JSONExporter) {
		j.version = version
		j.baseURL = baseURL
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{startedAt: time.Now()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type JSONMetricsOutput struct {
	Metadata     JSONMetadata      `json:"metadata"`
	Summary      *AggregateMetrics `json:"summary"`
	FailedChecks []string          `json:"failed_checks"`
	Checks       []*CheckMetric    `json:"checks"`
}

type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
	Version     string `json:"version,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
}

func (j *JSONExporter) Export(agg *AggregateMetrics) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	doc := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: now.Format(time.RFC3339),
			StartTime:   j.startedAt.Format(time.RFC3339),
			Duration:    now.Sub(j.startedAt).Round(time.Millisecond).String(),
			Version:     j.version,
			BaseURL:     j.baseURL,
		},
		Summary:      agg,
		FailedChecks: []string{},
		Checks:       j.checks,
	}
	for _, m := range j.checks {
		if !m.Passed {
			doc.FailedChecks = append(doc.FailedChecks, m.CheckName)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if dir := filepath.Dir(j.filePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating metrics directory: %w", err)
			}
		}
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("writing metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func (j *JSONExporter) ExportSingle(m *CheckMetric) error {
	j.mu.Lock()
	j.checks = append(j.checks, m)
	j.mu.Unlock()
	return nil
}

func (j *JSONExporter) Close() error { return nil }
