package config

import "time"

// JobxConfig configures the in-memory generation queue.
type JobxConfig struct {
	Concurrency     int
	MaxAttempts     int
	TickInterval    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	ShutdownTimeout time.Duration
	EventBuffer     int
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Concurrency:     getEnvInt("JOBX_CONCURRENCY", 2),
		MaxAttempts:     getEnvInt("JOBX_MAX_ATTEMPTS", 3),
		TickInterval:    getEnvDuration("JOBX_TICK_INTERVAL", time.Second),
		Retention:       getEnvDuration("JOBX_RETENTION", 24*time.Hour),
		CleanupInterval: getEnvDuration("JOBX_CLEANUP_INTERVAL", 10*time.Minute),
		ShutdownTimeout: getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		EventBuffer:     getEnvInt("JOBX_EVENT_BUFFER", 256),
	}
}
