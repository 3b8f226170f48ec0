package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/instantory/internal/jobs"
)

// Slack posts job outcomes to an incoming webhook.
type Slack struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack returns a Slack notifier for webhookURL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL, post: slackapi.PostWebhookContext}
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, job jobs.Job) error {
	if err := s.post(ctx, s.webhookURL, slackMessage(FormatJob(job))); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

func slackMessage(evt Event) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Color: evt.Color,
		Title: evt.Title,
		Text:  evt.Body,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: len(f.Value) < 40,
		})
	}
	return &slackapi.WebhookMessage{
		Text:        evt.Title,
		Attachments: []slackapi.Attachment{att},
	}
}
