package jobx

import "time"

// Options configures a Queue.
type Options struct {
	Concurrency     int
	MaxAttempts     int
	TickInterval    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	ShutdownTimeout time.Duration
	EventBuffer     int
	Observers       []Observer
}

func defaultOptions() Options {
	return Options{
		Concurrency:     2,
		MaxAttempts:     3,
		TickInterval:    time.Second,
		Retention:       24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		EventBuffer:     256,
	}
}

// Option is a functional option for configuring the queue.
type Option func(*Options)

// WithConcurrency sets the maximum number of simultaneously active jobs.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithMaxAttempts sets the default attempt ceiling for submitted jobs.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithTickInterval sets the scheduler tick.
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TickInterval = d
		}
	}
}

// WithRetention sets how long terminal jobs stay readable.
func WithRetention(d time.Duration) Option {
	return func(o *Options) {
		o.Retention = d
	}
}

// WithCleanupInterval sets how often expired terminal jobs are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.CleanupInterval = d
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight runs on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = d
	}
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.EventBuffer = n
		}
	}
}

// WithObserver registers observers that receive every job event.
func WithObserver(obs ...Observer) Option {
	return func(o *Options) {
		o.Observers = append(o.Observers, obs...)
	}
}
