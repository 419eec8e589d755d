package synthx

import (
	"context"
	"sync"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

// Breaker states reported by Failover.State.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

// FailoverOptions configures a Failover.
type FailoverOptions struct {
	// HealthTTL is how long a health probe result is trusted.
	HealthTTL time.Duration
	// HealthTimeout bounds one probe.
	HealthTimeout time.Duration
	// FailureThreshold consecutive outages open the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before letting a trial through.
	Cooldown time.Duration
	// RouteTTL is how long a generation stays pinned to the backend that
	// accepted it when no terminal status is ever read. Defaults to an hour.
	RouteTTL time.Duration
}

type route struct {
	backend  Backend
	accepted time.Time
}

// State is a snapshot of the failover decision inputs.
type State struct {
	PrimaryHealthy bool      `json:"primary_healthy"`
	CheckedAt      time.Time `json:"checked_at"`
	Breaker        string    `json:"breaker"`
	Failures       int       `json:"consecutive_failures"`
	Routed         int       `json:"routed_generations"`
	HasFallback    bool      `json:"has_fallback"`
}

// Failover routes submissions to the primary backend while it is healthy
// and its breaker is closed, and to the fallback otherwise. Status calls go
// to whichever backend accepted the generation.
type Failover struct {
	primary  Backend
	fallback Backend
	opts     FailoverOptions

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
	failures  int
	openedAt  time.Time
	routes    map[string]route
	now       func() time.Time
}

// NewFailover wraps primary with fallback. A nil fallback disables routing
// but keeps breaker bookkeeping.
func NewFailover(primary, fallback Backend, opts FailoverOptions) *Failover {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	if opts.RouteTTL <= 0 {
		opts.RouteTTL = time.Hour
	}
	return &Failover{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		routes:   make(map[string]route),
		now:      time.Now,
	}
}

func (f *Failover) Submit(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	b := f.pick(ctx)
	resp, err := b.Submit(ctx, req)
	if b == f.primary {
		f.record(err)
	}
	if err != nil {
		return resp, err
	}

	f.mu.Lock()
	now := f.now()
	for id, r := range f.routes {
		if now.Sub(r.accepted) > f.opts.RouteTTL {
			delete(f.routes, id)
		}
	}
	f.routes[req.GenerationID] = route{backend: b, accepted: now}
	f.mu.Unlock()
	return resp, nil
}

func (f *Failover) Status(ctx context.Context, generationID string) (StatusResponse, error) {
	f.mu.Lock()
	r, ok := f.routes[generationID]
	f.mu.Unlock()
	b := f.primary
	if ok {
		b = r.backend
	}

	resp, err := b.Status(ctx, generationID)
	if b == f.primary {
		f.record(err)
	}
	if err == nil && resp.IsTerminal() {
		f.mu.Lock()
		delete(f.routes, generationID)
		f.mu.Unlock()
	}
	return resp, err
}

// Health reports the primary's health, or the fallback's when the primary
// is unusable.
func (f *Failover) Health(ctx context.Context) (HealthResponse, error) {
	resp, err := f.primary.Health(ctx)
	if err == nil && resp.IsHealthy() {
		return resp, nil
	}
	if f.fallback == nil {
		return resp, err
	}
	fb, fbErr := f.fallback.Health(ctx)
	if fbErr != nil {
		return fb, fbErr
	}
	fb.Status = "degraded"
	return fb, nil
}

// State returns the current routing inputs.
func (f *Failover) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		PrimaryHealthy: f.healthy,
		CheckedAt:      f.checkedAt,
		Breaker:        f.breakerLocked(),
		Failures:       f.failures,
		Routed:         len(f.routes),
		HasFallback:    f.fallback != nil,
	}
}

func (f *Failover) pick(ctx context.Context) Backend {
	if f.fallback == nil {
		return f.primary
	}

	f.mu.Lock()
	if f.breakerLocked() == BreakerOpen {
		f.mu.Unlock()
		return f.fallback
	}
	fresh := !f.checkedAt.IsZero() && f.now().Sub(f.checkedAt) < f.opts.HealthTTL
	healthy := f.healthy
	f.mu.Unlock()

	if !fresh {
		healthy = f.probe(ctx)
	}
	if healthy {
		return f.primary
	}
	return f.fallback
}

func (f *Failover) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, f.opts.HealthTimeout)
	defer cancel()

	resp, err := f.primary.Health(ctx)
	healthy := err == nil && resp.IsHealthy()

	f.mu.Lock()
	changed := f.healthy != healthy || f.checkedAt.IsZero()
	f.healthy = healthy
	f.checkedAt = f.now()
	f.mu.Unlock()

	if changed {
		entry := logx.WithField("healthy", healthy)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("synthx: primary backend health changed")
	}
	return healthy
}

// record feeds a primary call outcome into the breaker.
func (f *Failover) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isOutage(err) {
		if !f.openedAt.IsZero() {
			logx.Info("synthx: primary backend recovered, closing breaker")
		}
		f.failures = 0
		f.openedAt = time.Time{}
		return
	}

	f.failures++
	// Force a fresh probe before the next routing decision.
	f.checkedAt = time.Time{}
	if f.failures >= f.opts.FailureThreshold {
		if f.openedAt.IsZero() || f.now().Sub(f.openedAt) >= f.opts.Cooldown {
			logx.WithField("failures", f.failures).Warn("synthx: opening breaker on primary backend")
		}
		f.openedAt = f.now()
	}
}

func (f *Failover) breakerLocked() string {
	switch {
	case f.openedAt.IsZero():
		return BreakerClosed
	case f.now().Sub(f.openedAt) < f.opts.Cooldown:
		return BreakerOpen
	default:
		return BreakerHalfOpen
	}
}
