package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts run summaries to a Slack incoming webhook as a
// single colored attachment.
type SlackNotifier struct {
	hook      webhook
	channel   string
	username  string
	iconEmoji string
}

type SlackOption func(*SlackNotifier)

// WithSlackChannel overrides the channel configured on the webhook.
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.hook.client = c
	}
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		hook:      newWebhook("slack", webhookURL, http.StatusOK),
		username:  "portalsmoke",
		iconEmoji: ":satellite:",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color := "good"
	emoji := ":white_check_mark:"
	if summary.Failed > 0 {
		color = "danger"
		emoji = ":x:"
	} else if summary.IsRecovery {
		emoji = ":tada:"
	}

	fields := []slackField{
		{Title: "Passed", Value: fmt.Sprintf("%d/%d (%.1f%%)", summary.Passed, summary.Total, summary.Percent), Short: true},
		{Title: "Verdict", Value: summary.Verdict, Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.BaseURL != "" {
		fields = append(fields, slackField{Title: "API", Value: summary.BaseURL, Short: true})
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed checks:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "• `%s %s` %s\n", f.Method, f.Endpoint, f.Message)
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s", emoji, summary.title()),
			Text:   text.String(),
			Fields: fields,
			Footer: "portalsmoke",
			TS:     time.Now().Unix(),
		}},
	}

	return s.hook.post(ctx, msg)
}
