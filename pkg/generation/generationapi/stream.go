package generationapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/culturalsoundlab/soundlab/pkg/auth"
	"github.com/culturalsoundlab/soundlab/pkg/generation"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

const keepAliveInterval = 15 * time.Second

type streamer struct {
	svc       *generation.Service
	sub       notifx.Subscriber
	keepAlive time.Duration
}

func newStreamer(svc *generation.Service, sub notifx.Subscriber) *streamer {
	return &streamer{svc: svc, sub: sub, keepAlive: keepAliveInterval}
}

// Events handles GET /api/v1/jobs/:id/events as a server-sent event stream.
// The first event is the current snapshot; the stream closes after a
// terminal update or when the client goes away. Updates published while the
// client is not connected are not replayed.
func (s *streamer) Events(c *fiber.Ctx) error {
	ac := auth.FromCtx(c)
	jobID := utils.CopyString(c.Params("id"))

	// the owner names the channel
	view, err := s.svc.Job(c.UserContext(), ac, jobID)
	if err != nil {
		return err
	}

	var (
		updates <-chan notifx.StatusUpdate
		cancel  = func() {}
		ctx     context.Context
		stop    context.CancelFunc
	)
	if view.Live && s.sub != nil {
		ctx, stop = context.WithCancel(context.Background())
		updates, cancel, err = s.sub.Subscribe(ctx, notifx.ChannelFor(view.UserID.String(), jobID))
		if err != nil {
			stop()
			return err
		}
		// a transition after this point is either in the snapshot or on updates
		if view, err = s.svc.Job(c.UserContext(), ac, jobID); err != nil {
			cancel()
			stop()
			return err
		}
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if stop != nil {
			defer stop()
		}
		defer cancel()

		if err := writeEvent(w, "status", view); err != nil || !view.Live || updates == nil {
			return
		}

		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEvent(w, "status", u); err != nil {
					logx.WithField("job_id", jobID).Debug("generationapi: stream client went away")
					return
				}
				if u.Terminal {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
