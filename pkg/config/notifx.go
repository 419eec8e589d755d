package config

// NotifxConfig configures status notifications.
type NotifxConfig struct {
	RealtimeProvider string
	EmailProvider    string
	FromAddress      string
	FromName         string
	AWSRegion        string
	PersistProgress  bool
	AppURL           string
}

func loadNotifxConfig() NotifxConfig {
	return NotifxConfig{
		RealtimeProvider: getEnv("NOTIFX_REALTIME_PROVIDER", "redis"),
		EmailProvider:    getEnv("NOTIFX_PROVIDER", "console"),
		FromAddress:      getEnv("NOTIFX_FROM_ADDRESS", getEnv("EMAIL_FROM_ADDRESS", "noreply@culturalsoundlab.com")),
		FromName:         getEnv("NOTIFX_FROM_NAME", getEnv("EMAIL_FROM_NAME", "Cultural Sound Lab")),
		AWSRegion:        getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
		PersistProgress:  getEnvBool("NOTIFX_PERSIST_PROGRESS", false),
		AppURL:           getEnv("APP_URL", "http://localhost:3000"),
	}
}
