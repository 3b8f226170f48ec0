// Package notify announces finished jobs to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/instantory/internal/config"
	"github.com/zulandar/instantory/internal/jobs"
)

// Color constants for job outcomes.
const (
	ColorSuccess = "#36a64f"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Notifier is told about every job that reaches a terminal status.
type Notifier interface {
	Notify(ctx context.Context, job jobs.Job) error
}

// Event is a job outcome rendered for chat.
type Event struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Field is a short labelled value shown alongside an event.
type Field struct {
	Name  string
	Value string
}

// FormatJob renders job as an Event.
func FormatJob(job jobs.Job) Event {
	evt := Event{
		Title: fmt.Sprintf("Job %s %s", shortID(job.ID), statusVerb(job.Status)),
		Body:  job.Message,
		Color: statusColor(job.Status),
		Fields: []Field{
			{Name: "Status", Value: string(job.Status)},
			{Name: "Items", Value: fmt.Sprintf("%d", job.Total)},
		},
	}
	if job.Error != "" {
		evt.Fields = append(evt.Fields, Field{Name: "Errors", Value: truncate(job.Error, 1000)})
	}
	return evt
}

func statusVerb(s jobs.Status) string {
	switch s {
	case jobs.StatusCompleted:
		return "completed"
	case jobs.StatusCompletedWithErrors:
		return "completed with errors"
	case jobs.StatusFailed:
		return "failed"
	default:
		return string(s)
	}
}

func statusColor(s jobs.Status) string {
	switch s {
	case jobs.StatusCompleted:
		return ColorSuccess
	case jobs.StatusCompletedWithErrors:
		return ColorWarning
	default:
		return ColorError
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; their errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, job jobs.Job) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers enabled in cfg. It returns nil when none
// are configured.
func FromConfig(cfg config.NotifyConfig) (Notifier, error) {
	var m Multi
	if cfg.SlackWebhookURL != "" {
		m = append(m, NewSlack(cfg.SlackWebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			return nil, err
		}
		m = append(m, d)
	}
	switch len(m) {
	case 0:
		return nil, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
