package notifxredis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

// Publisher implements notifx.RealtimePublisher and notifx.Subscriber over
// Redis pub/sub, so any API instance can stream updates produced by the
// instance running the job.
type Publisher struct {
	rdb    *redis.Client
	prefix string
}

// NewPublisher creates a Redis-backed publisher. Channel names are prefixed
// with prefix when one is given.
func NewPublisher(rdb *redis.Client, prefix string) *Publisher {
	return &Publisher{rdb: rdb, prefix: prefix}
}

func (p *Publisher) channel(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + ":" + name
}

// Publish sends update to channel.
func (p *Publisher) Publish(ctx context.Context, channel string, update notifx.StatusUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return notifx.NewError(notifx.ErrPublishFailed, err).WithDetail("channel", channel)
	}
	if err := p.rdb.Publish(ctx, p.channel(channel), data).Err(); err != nil {
		return notifx.NewError(notifx.ErrPublishFailed, err).WithDetail("channel", channel)
	}
	return nil
}

// Subscribe streams updates on channel until cancel is called or ctx ends.
// Malformed payloads are logged and skipped.
func (p *Publisher) Subscribe(ctx context.Context, channel string) (<-chan notifx.StatusUpdate, func(), error) {
	sub := p.rdb.Subscribe(ctx, p.channel(channel))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, notifx.NewError(notifx.ErrSubscribeFailed, err).WithDetail("channel", channel)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan notifx.StatusUpdate, 16)
	msgs := sub.Channel()

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				update, err := decode(msg.Payload)
				if err != nil {
					logx.WithError(err).WithField("channel", channel).Warn("notifx/redis: dropping malformed update")
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func decode(payload string) (notifx.StatusUpdate, error) {
	var u notifx.StatusUpdate
	err := json.Unmarshal([]byte(payload), &u)
	return u, err
}
