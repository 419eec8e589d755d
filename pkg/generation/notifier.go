package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

const (
	templateCompleted = "generation.completed"
	templateFailed    = "generation.failed"
)

// Notifier turns queue events into status notifications. It implements
// jobx.Observer.
type Notifier struct {
	client          *notifx.Client
	persistProgress bool
	appURL          string
}

// NewNotifier registers the generation email templates on client.
func NewNotifier(client *notifx.Client, persistProgress bool, appURL string) (*Notifier, error) {
	if err := client.RegisterTemplate(templateCompleted,
		"Your {{.Label}} is ready",
		`<p>Hi,</p><p>Your {{.Label}}{{if .Title}} "{{.Title}}"{{end}} has finished generating.</p>`+
			`<p><a href="{{.ResultURL}}">Listen now</a> or open <a href="{{.AppURL}}/generations/{{.GenerationID}}">your dashboard</a>.</p>`,
		"Your {{.Label}}{{if .Title}} \"{{.Title}}\"{{end}} is ready: {{.ResultURL}}\n",
	); err != nil {
		return nil, err
	}
	if err := client.RegisterTemplate(templateFailed,
		"Your {{.Label}} could not be generated",
		`<p>Hi,</p><p>We could not generate your {{.Label}}{{if .Title}} "{{.Title}}"{{end}}: {{.Error}}</p>`+
			`<p>You can try again from <a href="{{.AppURL}}/generations/{{.GenerationID}}">your dashboard</a>.</p>`,
		"We could not generate your {{.Label}}: {{.Error}}\n",
	); err != nil {
		return nil, err
	}
	return &Notifier{client: client, persistProgress: persistProgress, appURL: appURL}, nil
}

// Observe implements jobx.Observer. Notification failures are logged by the
// client and never reach the queue.
func (n *Notifier) Observe(ctx context.Context, ev jobx.Event) {
	if ev.Kind == jobx.EventRemoved {
		return
	}

	update := StatusUpdateFor(ev.Job)
	update.At = ev.At

	note := notifx.Notification{
		Channel: notifx.ChannelFor(ev.Job.UserID, ev.Job.ID),
		Update:  update,
	}

	switch ev.Kind {
	case jobx.EventSubmitted:
		note.Update.Message = "Queued"
	case jobx.EventActive:
		note.Persist = true
	case jobx.EventProgress:
		note.Persist = n.persistProgress
	case jobx.EventRetrying:
		note.Persist = true
		note.Update.Message = fmt.Sprintf("Retrying (attempt %d of %d)", ev.Job.Attempts+1, ev.Job.MaxAttempts)
	case jobx.EventCompleted, jobx.EventFailed:
		note.Persist = true
		note.Email = n.email(ev.Job, update)
	case jobx.EventCancelled:
		note.Persist = true
	}

	_ = n.client.Notify(ctx, note)
}

func (n *Notifier) email(job jobx.JobInfo, update notifx.StatusUpdate) *notifx.EmailMessage {
	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.NotifyEmail == "" {
		return nil
	}

	name := templateCompleted
	if job.Status == jobx.StatusFailed {
		name = templateFailed
	}
	msg, err := n.client.TemplatedEmail(name, map[string]any{
		"Label":        p.Type.Label(),
		"Title":        p.Title,
		"ResultURL":    update.ResultURL,
		"Error":        update.Error,
		"GenerationID": p.GenerationID,
		"AppURL":       n.appURL,
	}, p.NotifyEmail)
	if err != nil {
		logx.WithError(err).WithField("job_id", job.ID).Warn("generation: could not render email")
		return nil
	}
	return msg
}

// StatusUpdateFor maps a job snapshot onto the notification payload.
func StatusUpdateFor(job jobx.JobInfo) notifx.StatusUpdate {
	u := notifx.StatusUpdate{
		JobID:        job.ID,
		GenerationID: job.Reference,
		UserID:       job.UserID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		Message:      job.Message,
		Error:        job.Error,
		Terminal:     job.Status.IsTerminal(),
		At:           job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		var r Result
		if err := json.Unmarshal(job.Result, &r); err == nil {
			u.ResultURL = r.URL
			u.Metadata = r.Metadata
			u.ProcessingTime = r.ProcessingTime
		}
	}
	return u
}
