package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const adaptiveCardSchema = "http://adaptivecards.io/schemas/adaptive-card.json"

// TeamsNotifier posts run summaries to a Microsoft Teams workflow webhook
// as an Adaptive Card.
type TeamsNotifier struct {
	hook webhook
}

type TeamsOption func(*TeamsNotifier)

func WithTeamsHTTPClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.hook.client = c
	}
}

func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{hook: newWebhook("teams", webhookURL, http.StatusOK, http.StatusAccepted)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string      `json:"type"`
	Size      string      `json:"size,omitempty"`
	Weight    string      `json:"weight,omitempty"`
	Text      string      `json:"text,omitempty"`
	Color     string      `json:"color,omitempty"`
	Wrap      bool        `json:"wrap,omitempty"`
	Facts     []teamsFact `json:"facts,omitempty"`
	Spacing   string      `json:"spacing,omitempty"`
	Separator bool        `json:"separator,omitempty"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

func (t *TeamsNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color := "good"
	if summary.Failed > 0 {
		color = "attention"
	}

	facts := []teamsFact{
		{Title: "Passed", Value: fmt.Sprintf("%d/%d (%.1f%%)", summary.Passed, summary.Total, summary.Percent)},
		{Title: "Verdict", Value: summary.Verdict},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
	}
	if summary.BaseURL != "" {
		facts = append(facts, teamsFact{Title: "API", Value: summary.BaseURL})
	}

	body := []teamsBlock{
		{
			Type:   "TextBlock",
			Size:   "Large",
			Weight: "Bolder",
			Text:   summary.title(),
			Color:  color,
		},
		{
			Type:      "FactSet",
			Facts:     facts,
			Separator: true,
			Spacing:   "Medium",
		},
	}

	if len(summary.Failures) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed checks:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, f := range summary.Failures {
			body = append(body, teamsBlock{
				Type: "TextBlock",
				Text: fmt.Sprintf("- `%s %s` %s", f.Method, f.Endpoint, f.Message),
				Wrap: true,
			})
		}
	}

	body = append(body, teamsBlock{
		Type:      "TextBlock",
		Text:      fmt.Sprintf("_portalsmoke - %s_", time.Now().Format(time.RFC3339)),
		Separator: true,
		Spacing:   "Medium",
	})

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  adaptiveCardSchema,
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}

	return t.hook.post(ctx, msg)
}
