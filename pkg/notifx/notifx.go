package notifx

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/asyncx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

// RealtimePublisher pushes an update to subscribers of channel. Delivery is
// at most once; there is no replay for late subscribers.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel string, update StatusUpdate) error
}

// Subscriber streams updates published on channel until cancel is called
// or ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (updates <-chan StatusUpdate, cancel func(), err error)
}

// StatusWriter persists an update keyed by its generation id.
type StatusWriter interface {
	WriteStatus(ctx context.Context, update StatusUpdate) error
}

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// ChannelFor names the real-time channel of one job of one user.
func ChannelFor(userID, jobID string) string {
	return "generation:" + userID + ":" + jobID
}

// Client fans a Notification out to every configured sink.
type Client struct {
	realtime  RealtimePublisher
	writer    StatusWriter
	email     EmailSender
	from      string
	sendOpts  []Option
	timeout   time.Duration
	templates *TemplateRegistry
}

// NewClient creates a notification client. Sinks that are not configured
// are skipped.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   10 * time.Second,
		templates: NewTemplateRegistry(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Notify delivers n to every applicable sink concurrently and waits for all
// of them. Failures are logged and joined into the returned error; callers
// treat them as best-effort.
func (c *Client) Notify(ctx context.Context, n Notification) error {
	var (
		names []string
		sinks []func(context.Context) (struct{}, error)
	)
	add := func(name string, fn func(context.Context) error) {
		names = append(names, name)
		sinks = append(sinks, func(ctx context.Context) (struct{}, error) {
			ctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return struct{}{}, fn(ctx)
		})
	}

	if c.realtime != nil && n.Channel != "" {
		add("realtime", func(ctx context.Context) error {
			return c.realtime.Publish(ctx, n.Channel, n.Update)
		})
	}
	if c.writer != nil && n.Persist {
		add("datastore", func(ctx context.Context) error {
			return c.writer.WriteStatus(ctx, n.Update)
		})
	}
	if c.email != nil && n.Email != nil {
		add("email", func(ctx context.Context) error {
			return c.SendEmail(ctx, *n.Email)
		})
	}

	var errs []error
	for i, r := range asyncx.AllSettled(ctx, sinks...) {
		if r.OK() {
			continue
		}
		logx.WithError(r.Err).WithFields(logx.Fields{
			"sink":          names[i],
			"job_id":        n.Update.JobID,
			"generation_id": n.Update.GenerationID,
		}).Warn("notifx: sink failed")
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}

// SendEmail validates msg and sends it through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if c.email == nil {
		return notifxErrors.New(ErrSendFailed).WithDetail("reason", "no email provider configured")
	}
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	return c.email.SendEmail(ctx, msg, slices.Concat(c.sendOpts, opts)...)
}

// RegisterTemplate parses and stores a named template set for later use.
func (c *Client) RegisterTemplate(name, subject, html, text string) error {
	return c.templates.Register(name, subject, html, text)
}

// TemplatedEmail renders a registered template set into a message for to.
func (c *Client) TemplatedEmail(name string, data any, to ...string) (*EmailMessage, error) {
	r, err := c.templates.Render(name, data)
	if err != nil {
		return nil, err
	}
	return &EmailMessage{
		To:       to,
		Subject:  r.Subject,
		HTMLBody: r.HTML,
		TextBody: r.Text,
	}, nil
}
