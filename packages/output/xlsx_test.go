package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewXLSXFormatter(XLSXWithWriter(&buf))
	f.FormatHeader("1.0.0", "http://localhost:3001")

	results := sampleResults()
	results[0].Duration = 450 * time.Millisecond
	for _, r := range results {
		f.FormatResult(r)
	}
	f.FormatSummary(runner.Summarize(results, time.Second))
	require.NoError(t, f.Flush(time.Second))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(XLSXSheetName)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), len(results)+1)

	assert.Equal(t, xlsxHeaders, rows[0])
	assert.Equal(t, []string{"1", "health", "GET", "/health", "PASS", "200", "Server is healthy (status: ok)", "450"}, rows[1])
	assert.Equal(t, "409", rows[2][5])
	assert.Equal(t, "", rows[3][5])

	verdict, err := book.GetCellValue(XLSXSheetName, "B13")
	require.NoError(t, err)
	assert.Equal(t, string(runner.VerdictFor(1)), verdict)

	// failing rows are filled, slow passing rows get the warning fill
	failStyle, err := book.GetCellStyle(XLSXSheetName, "A3")
	require.NoError(t, err)
	slowStyle, err := book.GetCellStyle(XLSXSheetName, "A2")
	require.NoError(t, err)
	assert.NotZero(t, failStyle)
	assert.NotZero(t, slowStyle)
	assert.NotEqual(t, failStyle, slowStyle)
}

func TestXLSXFormatter_WithoutSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewXLSXFormatter(XLSXWithWriter(&buf))
	f.FormatResult(sampleResults()[0])
	require.NoError(t, f.Flush(10*time.Millisecond))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	passed, err := book.GetCellValue(XLSXSheetName, "B6")
	require.NoError(t, err)
	assert.Equal(t, "1", passed)
}
