package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case []string:
		return strings.Join(val, "; ")
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type ConsoleFormatter struct {
	writer      io.Writer
	verbose     bool
	noColor     bool
	credentials []config.Credential
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithCredentials sets the credentials printed as a reminder after the summary.
func WithCredentials(creds []config.Credential) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.credentials = creds
	}
}

func (f *ConsoleFormatter) FormatHeader(version, baseURL string) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("portalsmoke"), version)
	fmt.Fprintf(f.writer, "Testing Alliance Portal API at %s\n\n", cyan(baseURL))
}

func (f *ConsoleFormatter) FormatResult(r *runner.TestResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	symbol := green("✓")
	message := r.Message
	if !r.Passed() {
		symbol = red("✗")
		message = red(r.Message)
	}

	fmt.Fprintf(f.writer, "  %s %-7s %s %s", symbol, r.Method, r.Endpoint, message)
	if r.StatusCode != nil {
		fmt.Fprintf(f.writer, " %s", faint(fmt.Sprintf("[%d]", *r.StatusCode)))
	}
	if r.Duration > 0 {
		fmt.Fprintf(f.writer, " %s", cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
	}
	fmt.Fprintf(f.writer, "\n")

	if len(r.Data) == 0 {
		return
	}
	if !f.verbose {
		fmt.Fprintf(f.writer, "      %s\n", faint(dataExcerpt(r.Data, excerptWidth)))
		return
	}
	for _, key := range sortedKeys(r.Data) {
		fmt.Fprintf(f.writer, "      %s = %s\n", key, formatValue(r.Data[key], 100))
	}
}

// excerptWidth bounds the one-line data excerpt printed without --verbose.
const excerptWidth = 80

// dataExcerpt renders data as sorted key=value pairs on one line, cut at width.
func dataExcerpt(data map[string]any, width int) string {
	pairs := make([]string, 0, len(data))
	for _, key := range sortedKeys(data) {
		pairs = append(pairs, key+"="+formatValue(data[key], 30))
	}
	line := strings.Join(pairs, " ")
	if len(line) > width {
		return line[:width] + "..."
	}
	return line
}

func (f *ConsoleFormatter) FormatSummary(s *runner.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "Tests:   ")
	failed := fmt.Sprintf("%d failed", s.Failed)
	if s.Failed > 0 {
		failed = red(failed)
	}
	fmt.Fprintf(f.writer, "%s, %s, %d total\n", green(fmt.Sprintf("%d passed", s.Passed)), failed, s.Total)
	fmt.Fprintf(f.writer, "Success: %.1f%%\n", s.Percent)
	fmt.Fprintf(f.writer, "Time:    %dms\n", s.Duration.Milliseconds())

	if len(s.Failures) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", bold("Failed checks:"))
		for _, r := range s.Failures {
			fmt.Fprintf(f.writer, "  %s %s %s: %s\n", red("→"), r.Method, r.Endpoint, r.Message)
		}
	}

	fmt.Fprintf(f.writer, "\n%s\n", f.verdictLine(s.Verdict))

	if len(f.credentials) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", bold("Test credentials:"))
		for _, c := range f.credentials {
			label := c.Label
			if label == "" {
				label = "credential"
			}
			fmt.Fprintf(f.writer, "  %-9s %s / %s\n", label+":", c.Email, c.Password)
		}
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) verdictLine(v runner.Verdict) string {
	switch v {
	case runner.VerdictWorkingWell:
		return color.New(color.FgGreen, color.Bold).Sprint("Alliance Portal API is working well")
	case runner.VerdictSomeIssues:
		return color.New(color.FgYellow, color.Bold).Sprint("Alliance Portal API has some issues")
	default:
		return color.New(color.FgRed, color.Bold).Sprint("Alliance Portal API has major issues")
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}
