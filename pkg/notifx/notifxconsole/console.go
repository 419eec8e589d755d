package notifxconsole

import (
	"context"
	"strings"
	"sync"

	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

// ConsoleProvider logs emails and status updates via logx and delivers
// updates to in-process subscribers. Intended for development and tests,
// where no Redis is available.
type ConsoleProvider struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan notifx.StatusUpdate
	nextID int
}

// NewConsoleProvider creates a new console provider.
func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{subs: make(map[string]map[int]chan notifx.StatusUpdate)}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}
	return nil
}

// Publish logs the update and hands it to current subscribers of channel.
// Subscribers that are not keeping up miss the update.
func (p *ConsoleProvider) Publish(_ context.Context, channel string, update notifx.StatusUpdate) error {
	logx.WithFields(logx.Fields{
		"channel":  channel,
		"status":   update.Status,
		"progress": update.Progress,
	}).Debug("notifx/console: status update")

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs[channel] {
		select {
		case ch <- update:
		default:
		}
	}
	return nil
}

// Subscribe registers an in-process subscriber on channel.
func (p *ConsoleProvider) Subscribe(ctx context.Context, channel string) (<-chan notifx.StatusUpdate, func(), error) {
	ch := make(chan notifx.StatusUpdate, 16)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	if p.subs[channel] == nil {
		p.subs[channel] = make(map[int]chan notifx.StatusUpdate)
	}
	p.subs[channel][id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[channel], id)
			if len(p.subs[channel]) == 0 {
				delete(p.subs, channel)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}
