package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
)

// JUnitSuiteName names the single suite a smoke run produces.
const JUnitSuiteName = "alliance-portal"

type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite holds every check of one run. Properties carry the run
// context CI dashboards show next to the suite.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitTestCase is one check. A rejection by the API is a Failure; a check
// that never got a response is an Error.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
}

type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitFormatter struct {
	writer  io.Writer
	baseURL string
	suite   JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		suite: JUnitTestSuite{
			Name:      JUnitSuiteName,
			TestCases: make([]JUnitTestCase, 0),
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatHeader(version, baseURL string) {
	f.baseURL = baseURL
	f.suite.Timestamp = time.Now().Format(time.RFC3339)
	f.suite.Properties = append(f.suite.Properties,
		JUnitProperty{Name: "baseUrl", Value: baseURL},
		JUnitProperty{Name: "version", Value: version},
	)
}

func (f *JUnitFormatter) FormatResult(r *runner.TestResult) {
	tc := JUnitTestCase{
		Name:      r.Name,
		ClassName: r.Method + " " + r.Endpoint,
		Time:      r.Duration.Seconds(),
	}

	switch {
	case r.Passed():
	case r.StatusCode == nil && r.Message != runner.MessageNoToken:
		f.suite.Errors++
		tc.Error = &JUnitProblem{Message: r.Message, Type: "TransportError"}
	default:
		f.suite.Failures++
		problem := &JUnitProblem{Message: r.Message, Type: "CheckFailed", Content: r.Message}
		if r.StatusCode != nil {
			problem.Content = fmt.Sprintf("status %d: %s", *r.StatusCode, r.Message)
		}
		tc.Failure = problem
	}

	f.suite.Tests++
	f.suite.Time += r.Duration.Seconds()
	f.suite.TestCases = append(f.suite.TestCases, tc)
}

func (f *JUnitFormatter) FormatSummary(s *runner.Summary) {
	f.suite.Properties = append(f.suite.Properties,
		JUnitProperty{Name: "successRate", Value: strconv.FormatFloat(s.Percent, 'f', 1, 64)},
		JUnitProperty{Name: "verdict", Value: string(s.Verdict)},
	)
}

// FormatError is a no-op; an aborted run still flushes the cases recorded so far.
func (f *JUnitFormatter) FormatError(err error) {}

func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	name := "portalsmoke"
	if f.baseURL != "" {
		name += " " + f.baseURL
	}

	suites := JUnitTestSuites{
		Name:       name,
		Tests:      f.suite.Tests,
		Failures:   f.suite.Failures,
		Errors:     f.suite.Errors,
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: []JUnitTestSuite{f.suite},
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return fmt.Errorf("encoding junit report: %w", err)
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}
