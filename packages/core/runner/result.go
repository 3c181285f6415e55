package runner

import (
	"maps"
	"time"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// TestResult records one executed check. Results are appended once and
// never modified afterwards.
type TestResult struct {
	Name       string         `json:"name"`
	Endpoint   string         `json:"endpoint"`
	Method     string         `json:"method"`
	Status     Status         `json:"status"`
	StatusCode *int           `json:"statusCode,omitempty"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

func (r *TestResult) Passed() bool {
	return r.Status == StatusPass
}

// Code returns the observed HTTP status, or 0 when no response was received.
func (r *TestResult) Code() int {
	if r.StatusCode == nil {
		return 0
	}
	return *r.StatusCode
}

// clone copies the result, its status code and its top-level Data map.
func (r *TestResult) clone() *TestResult {
	c := *r
	if r.StatusCode != nil {
		c.StatusCode = intPtr(*r.StatusCode)
	}
	c.Data = maps.Clone(r.Data)
	return &c
}

func intPtr(i int) *int {
	return &i
}
