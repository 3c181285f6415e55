// Package output provides formatters for displaying smoke run results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//   - XLSX: Excel workbook, failing rows highlighted
//
// Console output is streamed: every check is printed as soon as it is
// recorded. The other formats accumulate results and write them on Flush.
package output
