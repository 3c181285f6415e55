// Package assertions validates Alliance Portal response envelopes against
// JSON Schemas.
//
// Supported envelopes:
//   - Health ({"status": "..."})
//   - Auth ({"data": {"token": "..."}})
//   - List ({"data": [...]})
//   - Object ({"data": {...}})
//
// Validation is diagnostic: the runner attaches violations to a check's
// data but never turns a passing check into a failing one.
package assertions
