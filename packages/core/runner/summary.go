package runner

import (
	"math"
	"time"
)

// Verdict is the coarse health rating printed at the end of a run.
type Verdict string

const (
	VerdictWorkingWell Verdict = "working well"
	VerdictSomeIssues  Verdict = "some issues"
	VerdictMajorIssues Verdict = "major issues"
)

// Verdict thresholds are absolute pass counts, tuned for the eight checks of RunAll.
const (
	WorkingWellThreshold = 6
	SomeIssuesThreshold  = 4
)

type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Percent  float64       `json:"percent"`
	Failures []*TestResult `json:"failures,omitempty"`
	Verdict  Verdict       `json:"verdict"`
	Duration time.Duration `json:"duration"`
}

// Summarize aggregates results without modifying them.
func Summarize(results []*TestResult, duration time.Duration) *Summary {
	s := &Summary{
		Total:    len(results),
		Duration: duration,
	}

	for _, r := range results {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
			s.Failures = append(s.Failures, r)
		}
	}

	s.Percent = SuccessPercent(s.Passed, s.Total)
	s.Verdict = VerdictFor(s.Passed)
	return s
}

// SuccessPercent is passed/total*100 rounded to one decimal place. An empty
// run is 0%.
func SuccessPercent(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*1000) / 10
}

func VerdictFor(passed int) Verdict {
	switch {
	case passed >= WorkingWellThreshold:
		return VerdictWorkingWell
	case passed >= SomeIssuesThreshold:
		return VerdictSomeIssues
	default:
		return VerdictMajorIssues
	}
}

// AllPassed reports whether the run had no failing checks.
func (s *Summary) AllPassed() bool {
	return s.Failed == 0
}
