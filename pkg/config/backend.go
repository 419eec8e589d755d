package config

import "time"

// BackendConfig configures the external synthesis backend and the worker
// that drives it.
type BackendConfig struct {
	URL              string
	APIKey           string
	UseMock          bool
	SubmitTimeout    time.Duration
	PollTimeout      time.Duration
	PollInterval     time.Duration
	MaxPolls         int
	HealthTTL        time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	MockSpeedup      float64
}

func loadBackendConfig() BackendConfig {
	return BackendConfig{
		URL:              getEnv("SYNTH_BACKEND_URL", "http://localhost:8000"),
		APIKey:           getEnv("SYNTH_BACKEND_API_KEY", ""),
		UseMock:          getEnvBool("SYNTH_USE_MOCK", false),
		SubmitTimeout:    getEnvDuration("SYNTH_SUBMIT_TIMEOUT", 5*time.Minute),
		PollTimeout:      getEnvDuration("SYNTH_POLL_TIMEOUT", 15*time.Second),
		PollInterval:     getEnvDuration("SYNTH_POLL_INTERVAL", 5*time.Second),
		MaxPolls:         getEnvInt("SYNTH_MAX_POLLS", 60),
		HealthTTL:        getEnvDuration("SYNTH_HEALTH_TTL", 30*time.Second),
		FailureThreshold: getEnvInt("SYNTH_FAILURE_THRESHOLD", 3),
		Cooldown:         getEnvDuration("SYNTH_COOLDOWN", time.Minute),
		MockSpeedup:      getEnvFloat("SYNTH_MOCK_SPEEDUP", 1),
	}
}
