package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeResults(passed, failed int) []*TestResult {
	var results []*TestResult
	for i := 0; i < passed; i++ {
		results = append(results, &TestResult{Name: "ok", Status: StatusPass})
	}
	for i := 0; i < failed; i++ {
		results = append(results, &TestResult{Name: "bad", Status: StatusFail})
	}
	return results
}

func TestSuccessPercent(t *testing.T) {
	tests := []struct {
		passed, total int
		want          float64
	}{
		{0, 0, 0},
		{0, 8, 0},
		{8, 8, 100},
		{5, 8, 62.5},
		{1, 3, 33.3},
		{2, 3, 66.7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SuccessPercent(tt.passed, tt.total), "%d/%d", tt.passed, tt.total)
	}
}

func TestVerdictFor(t *testing.T) {
	tests := []struct {
		passed int
		want   Verdict
	}{
		{0, VerdictMajorIssues},
		{3, VerdictMajorIssues},
		{4, VerdictSomeIssues},
		{5, VerdictSomeIssues},
		{6, VerdictWorkingWell},
		{8, VerdictWorkingWell},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerdictFor(tt.passed), "passed=%d", tt.passed)
	}
}

func TestSummarize(t *testing.T) {
	t.Run("empty run", func(t *testing.T) {
		s := Summarize(nil, 0)
		assert.Equal(t, 0, s.Total)
		assert.Equal(t, 0.0, s.Percent)
		assert.Equal(t, VerdictMajorIssues, s.Verdict)
		assert.True(t, s.AllPassed())
	})

	t.Run("mixed", func(t *testing.T) {
		results := makeResults(5, 3)
		s := Summarize(results, time.Second)

		assert.Equal(t, 8, s.Total)
		assert.Equal(t, 5, s.Passed)
		assert.Equal(t, 3, s.Failed)
		assert.Equal(t, 62.5, s.Percent)
		assert.Equal(t, VerdictSomeIssues, s.Verdict)
		assert.Len(t, s.Failures, 3)
		assert.False(t, s.AllPassed())
		assert.Equal(t, time.Second, s.Duration)
	})

	t.Run("does not modify results", func(t *testing.T) {
		results := makeResults(1, 1)
		_ = Summarize(results, 0)
		assert.Equal(t, StatusPass, results[0].Status)
		assert.Equal(t, StatusFail, results[1].Status)
	})
}

func TestTestResult_Code(t *testing.T) {
	assert.Equal(t, 0, (&TestResult{}).Code())
	assert.Equal(t, 404, (&TestResult{StatusCode: intPtr(404)}).Code())
}
