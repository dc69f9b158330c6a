package config

import "time"

func Defaults() *Config {
	return &Config{
		Slack: SlackConfig{
			APIBase:    "https://slack.com/api",
			Timeout:    30 * time.Second,
			ProfileDir: "~/.slackmcp/browser",
		},
		Audit: AuditConfig{
			OutboxPath:    "~/.slackmcp/audit.db",
			MaxArgLength:  500,
			FlushInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 50,
			Burst:             10,
			MaxAttempts:       5,
			NetworkRetries:    2,
			BaseBackoff:       time.Second,
			MaxBackoff:        30 * time.Second,
		},
		Search: SearchConfig{
			DefaultCount: 20,
			MaxCount:     100,
			PageSize:     100,
			ThreadLimit:  200,
			HistoryLimit: 100,
			Timezone:     "UTC",
		},
		Writes: WritesConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Transport:   "stdio",
			Host:        "127.0.0.1",
			Port:        8090,
			MetricsPath: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
