package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/xuri/excelize/v2"
)

const (
	// XLSXSheetName is the worksheet holding one row per check.
	XLSXSheetName = "Smoke Run"

	// SlowCheckThreshold marks passing checks that took longer than this.
	SlowCheckThreshold = 300 * time.Millisecond

	failFillColor = "FF5900"
	slowFillColor = "FFEB9C"
	columnWidth   = 14
)

var xlsxHeaders = []string{"#", "Check", "Method", "Endpoint", "Status", "Code", "Message", "Duration (ms)"}

// XLSXFormatter writes an Excel workbook with the checks and a summary block.
type XLSXFormatter struct {
	writer  io.Writer
	version string
	baseURL string
	results []*runner.TestResult
	summary *runner.Summary
}

type XLSXOption func(*XLSXFormatter)

func NewXLSXFormatter(opts ...XLSXOption) *XLSXFormatter {
	f := &XLSXFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func XLSXWithWriter(w io.Writer) XLSXOption {
	return func(f *XLSXFormatter) {
		f.writer = w
	}
}

func (f *XLSXFormatter) FormatHeader(version, baseURL string) {
	f.version = version
	f.baseURL = baseURL
}

func (f *XLSXFormatter) FormatResult(r *runner.TestResult) {
	f.results = append(f.results, r)
}

func (f *XLSXFormatter) FormatSummary(s *runner.Summary) {
	f.summary = s
}

func (f *XLSXFormatter) FormatError(err error) {
	// The workbook only holds recorded checks
}

// Flush builds the workbook and writes it to the writer.
func (f *XLSXFormatter) Flush(totalDuration time.Duration) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", XLSXSheetName); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}
	if err := book.SetColWidth(XLSXSheetName, "A", "H", columnWidth); err != nil {
		return err
	}
	_ = book.SetColWidth(XLSXSheetName, "G", "G", 48)

	failStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{failFillColor}},
	})
	if err != nil {
		return err
	}
	slowStyle, err := book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{slowFillColor}},
	})
	if err != nil {
		return err
	}
	boldStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := book.SetSheetRow(XLSXSheetName, "A1", &xlsxHeaders); err != nil {
		return err
	}
	_ = book.SetCellStyle(XLSXSheetName, "A1", "H1", boldStyle)

	for i, r := range f.results {
		row := i + 2
		var code any = ""
		if r.StatusCode != nil {
			code = *r.StatusCode
		}
		values := []any{
			i + 1, r.Name, r.Method, r.Endpoint, string(r.Status), code, r.Message,
			float64(r.Duration.Microseconds()) / 1000,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		end, _ := excelize.CoordinatesToCellName(len(values), row)
		if err := book.SetSheetRow(XLSXSheetName, start, &values); err != nil {
			return err
		}

		switch {
		case !r.Passed():
			_ = book.SetCellStyle(XLSXSheetName, start, end, failStyle)
		case r.Duration > SlowCheckThreshold:
			_ = book.SetCellStyle(XLSXSheetName, start, end, slowStyle)
		}
	}

	summary := f.summary
	if summary == nil {
		summary = runner.Summarize(f.results, totalDuration)
	}
	row := len(f.results) + 3
	rows := [][]any{
		{"Base URL", f.baseURL},
		{"Version", f.version},
		{"Passed", summary.Passed},
		{"Failed", summary.Failed},
		{"Total", summary.Total},
		{"Success (%)", summary.Percent},
		{"Verdict", string(summary.Verdict)},
		{"Duration (ms)", totalDuration.Milliseconds()},
	}
	for i, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, row+i)
		if err := book.SetSheetRow(XLSXSheetName, cell, &values); err != nil {
			return err
		}
		_ = book.SetCellStyle(XLSXSheetName, cell, cell, boldStyle)
	}

	if err := book.Write(f.writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
