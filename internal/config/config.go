package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for slackmcp.
type Config struct {
	Slack     SlackConfig     `yaml:"slack"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Search    SearchConfig    `yaml:"search"`
	Writes    WritesConfig    `yaml:"writes"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// SlackConfig holds the session credentials and upstream endpoint.
// WebToken is the xoxc- token, CookieToken the value of the "d" cookie (xoxd-).
type SlackConfig struct {
	APIBase      string        `yaml:"apiBase"`
	WebToken     string        `yaml:"webToken"`
	CookieToken  string        `yaml:"cookieToken"`
	UserAgent    string        `yaml:"userAgent,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
	WorkspaceURL string        `yaml:"workspaceURL,omitempty"` // used by login
	ProfileDir   string        `yaml:"profileDir,omitempty"`   // browser profile for login
}

type AuditConfig struct {
	ChannelID     string        `yaml:"channelId"`
	OutboxPath    string        `yaml:"outboxPath,omitempty"` // empty disables the retry queue
	MaxArgLength  int           `yaml:"maxArgLength"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64       `yaml:"requestsPerMinute"`
	Burst             int           `yaml:"burst"`
	MaxAttempts       int           `yaml:"maxAttempts"`    // throttled responses before giving up
	NetworkRetries    int           `yaml:"networkRetries"` // transient failures before giving up
	BaseBackoff       time.Duration `yaml:"baseBackoff"`
	MaxBackoff        time.Duration `yaml:"maxBackoff"`
}

type SearchConfig struct {
	DefaultCount int    `yaml:"defaultCount"`
	MaxCount     int    `yaml:"maxCount"`
	PageSize     int    `yaml:"pageSize"` // upstream page size, at most 100
	ThreadLimit  int    `yaml:"threadLimit"`
	HistoryLimit int    `yaml:"historyLimit"`
	Timezone     string `yaml:"timezone"`
}

type WritesConfig struct {
	Enabled       bool     `yaml:"enabled"`
	AllowChannels []string `yaml:"allowChannels,omitempty"`
	DenyChannels  []string `yaml:"denyChannels,omitempty"`
}

type ServerConfig struct {
	Transport   string        `yaml:"transport"` // "stdio" | "sse" | "http"
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	MetricsPath string        `yaml:"metricsPath"`
	CallTimeout time.Duration `yaml:"callTimeout"` // 0 = no per-call deadline
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "console"
	File   string `yaml:"file,omitempty"`
}

// Addr is the listen address for the network transports.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfigDir returns the default config directory (~/.slackmcp).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slackmcp"
	}
	return filepath.Join(home, ".slackmcp")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the YAML file at path (if any), then applies environment
// overrides. A missing file at the default path is not an error; an explicit
// path that cannot be read is.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath():
		case err != nil:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		default:
			// Substitute environment variables: ${VAR} and ${VAR:-default}
			data = []byte(ExpandEnvVars(string(data)))
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		}
	}

	ApplyEnv(cfg)

	cfg.Audit.OutboxPath = ExpandPath(cfg.Audit.OutboxPath)
	cfg.Slack.ProfileDir = ExpandPath(cfg.Slack.ProfileDir)
	cfg.Log.File = ExpandPath(cfg.Log.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

var channelIDPattern = regexp.MustCompile(`^[CG][A-Z0-9]{6,}$`)

// Validate checks value ranges. It does not require credentials; see
// ValidateSession for that.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Slack.APIBase == "" {
		errs = append(errs, "slack.apiBase is required")
	} else if !strings.HasPrefix(cfg.Slack.APIBase, "http://") && !strings.HasPrefix(cfg.Slack.APIBase, "https://") {
		errs = append(errs, "slack.apiBase must be an http(s) URL")
	}
	if cfg.Slack.Timeout <= 0 {
		errs = append(errs, "slack.timeout must be > 0")
	}

	if cfg.Audit.ChannelID != "" && !channelIDPattern.MatchString(cfg.Audit.ChannelID) {
		errs = append(errs, fmt.Sprintf("audit.channelId %q is not a channel ID", cfg.Audit.ChannelID))
	}
	if cfg.Audit.MaxArgLength < 16 {
		errs = append(errs, "audit.maxArgLength must be >= 16")
	}
	if cfg.Audit.FlushInterval < 0 {
		errs = append(errs, "audit.flushInterval must be >= 0")
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "rateLimit.requestsPerMinute must be > 0")
	}
	if cfg.RateLimit.Burst < 1 {
		errs = append(errs, "rateLimit.burst must be >= 1")
	}
	if cfg.RateLimit.MaxAttempts < 1 || cfg.RateLimit.MaxAttempts > 20 {
		errs = append(errs, "rateLimit.maxAttempts must be between 1 and 20")
	}
	if cfg.RateLimit.NetworkRetries < 0 || cfg.RateLimit.NetworkRetries > 10 {
		errs = append(errs, "rateLimit.networkRetries must be between 0 and 10")
	}
	if cfg.RateLimit.BaseBackoff <= 0 || cfg.RateLimit.MaxBackoff < cfg.RateLimit.BaseBackoff {
		errs = append(errs, "rateLimit backoff must satisfy 0 < baseBackoff <= maxBackoff")
	}

	if cfg.Search.PageSize < 1 || cfg.Search.PageSize > 100 {
		errs = append(errs, "search.pageSize must be between 1 and 100")
	}
	if cfg.Search.MaxCount < 1 {
		errs = append(errs, "search.maxCount must be >= 1")
	}
	if cfg.Search.DefaultCount < 1 || cfg.Search.DefaultCount > cfg.Search.MaxCount {
		errs = append(errs, "search.defaultCount must be between 1 and search.maxCount")
	}
	if cfg.Search.ThreadLimit < 1 {
		errs = append(errs, "search.threadLimit must be >= 1")
	}
	if cfg.Search.HistoryLimit < 1 || cfg.Search.HistoryLimit > 1000 {
		errs = append(errs, "search.historyLimit must be between 1 and 1000")
	}
	if _, err := time.LoadLocation(cfg.Search.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("search.timezone: %v", err))
	}

	switch cfg.Server.Transport {
	case "stdio", "sse", "http":
	default:
		errs = append(errs, "server.transport must be one of: stdio, sse, http")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.CallTimeout < 0 {
		errs = append(errs, "server.callTimeout must be >= 0")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log.format must be one of: json, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateSession checks what is needed to talk to Slack and audit calls.
// The network transports may receive credentials per request, so the
// process-wide tokens are only mandatory for stdio.
func ValidateSession(cfg *Config) error {
	var errs []string

	if cfg.Audit.ChannelID == "" {
		errs = append(errs, "audit.channelId is required (LOGS_CHANNEL_ID)")
	}

	needTokens := cfg.Server.Transport == "stdio"
	if needTokens || cfg.Slack.WebToken != "" || cfg.Slack.CookieToken != "" {
		if !strings.HasPrefix(cfg.Slack.WebToken, "xoxc-") {
			errs = append(errs, "slack.webToken must be an xoxc- token (SLACK_XOXC_TOKEN)")
		}
		if cfg.Slack.CookieToken == "" {
			errs = append(errs, "slack.cookieToken is required (SLACK_XOXD_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("session configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
