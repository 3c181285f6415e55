// Package notify posts smoke run summaries to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a check fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every check passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and on the first clean run after one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(s), nil
	case "":
		return NotifyFailure, nil
	}
	return "", fmt.Errorf("invalid notify-on value %q (use always, failure, success or recovery)", s)
}

// RunSummary is the notification payload for one smoke run
type RunSummary struct {
	BaseURL    string        `json:"base_url"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Percent    float64       `json:"percent"`
	Verdict    string        `json:"verdict"`
	Duration   time.Duration `json:"duration"`
	Failures   []FailedCheck `json:"failures,omitempty"`
	IsRecovery bool          `json:"is_recovery,omitempty"`
}

// FailedCheck is one failing check in a notification
type FailedCheck struct {
	Name     string `json:"name"`
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Message  string `json:"message"`
}

// FromSummary builds the notification payload for a finished run.
func FromSummary(s *runner.Summary, baseURL string) *RunSummary {
	rs := &RunSummary{
		BaseURL:  baseURL,
		Total:    s.Total,
		Passed:   s.Passed,
		Failed:   s.Failed,
		Percent:  s.Percent,
		Verdict:  string(s.Verdict),
		Duration: s.Duration,
	}
	for _, f := range s.Failures {
		rs.Failures = append(rs.Failures, FailedCheck{
			Name:     f.Name,
			Method:   f.Method,
			Endpoint: f.Endpoint,
			Message:  f.Message,
		})
	}
	return rs
}

func (s *RunSummary) title() string {
	switch {
	case s.Failed > 0:
		return fmt.Sprintf("%d of %d smoke checks failed", s.Failed, s.Total)
	case s.IsRecovery:
		return "Alliance Portal smoke checks recovered"
	default:
		return "All smoke checks passed"
	}
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about a smoke run
	Notify(ctx context.Context, summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true, // Assume success initially
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of registered notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// SetLastState seeds the outcome of the previous run, typically from history.
func (m *Manager) SetLastState(passed bool) {
	m.lastState = passed
}

// ShouldNotify applies the policy to a run without changing the manager state.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	success := summary.Failed == 0
	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifyFailure:
		return !success
	case NotifySuccess:
		return success
	case NotifyRecovery:
		return !success || !m.lastState
	}
	return false
}

// Notify sends notifications based on the configured policy. Every notifier
// is tried; their errors are joined.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	success := summary.Failed == 0
	shouldNotify := m.ShouldNotify(summary)
	if m.notifyOn == NotifyRecovery && success && !m.lastState {
		summary.IsRecovery = true
	}
	m.lastState = success

	if !shouldNotify {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
