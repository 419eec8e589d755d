package notifx

import "time"

// SendOptions holds optional configuration for a send operation.
type SendOptions struct {
	Tags     map[string]string
	ConfigID string
}

// Option is a functional option for send operations.
type Option func(*SendOptions)

// WithTags adds metadata tags to the send operation.
func WithTags(tags map[string]string) Option {
	return func(o *SendOptions) {
		o.Tags = tags
	}
}

// WithConfigID sets a provider-specific configuration set identifier.
func WithConfigID(id string) Option {
	return func(o *SendOptions) {
		o.ConfigID = id
	}
}

// ApplySendOptions folds opts into a SendOptions value for providers.
func ApplySendOptions(opts []Option) SendOptions {
	var so SendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRealtime sets the real-time publisher.
func WithRealtime(p RealtimePublisher) ClientOption {
	return func(c *Client) { c.realtime = p }
}

// WithStatusWriter sets the durable status sink.
func WithStatusWriter(w StatusWriter) ClientOption {
	return func(c *Client) { c.writer = w }
}

// WithEmail sets the email provider and the default sender address.
func WithEmail(sender EmailSender, from string) ClientOption {
	return func(c *Client) {
		c.email = sender
		c.from = from
	}
}

// WithSinkTimeout bounds each sink call.
func WithSinkTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSendOptions sets options passed to every email send.
func WithSendOptions(opts ...Option) ClientOption {
	return func(c *Client) { c.sendOpts = append(c.sendOpts, opts...) }
}
