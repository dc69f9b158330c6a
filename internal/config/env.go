package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized on top of the config file.
const (
	EnvWebToken    = "SLACK_XOXC_TOKEN"
	EnvCookieToken = "SLACK_XOXD_TOKEN"
	EnvLogsChannel = "LOGS_CHANNEL_ID"
	EnvTransport   = "MCP_TRANSPORT"
	EnvAPIBase     = "SLACK_API_BASE"
	EnvLogLevel    = "SLACKMCP_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(ExpandPath(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// WriteDotEnv merges values into the env file at path, keeping other keys.
func WriteDotEnv(path string, values map[string]string) error {
	path = ExpandPath(path)
	existing, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		existing = map[string]string{}
	}
	for k, v := range values {
		existing[k] = v
	}
	if err := godotenv.Write(existing, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// ApplyEnv overrides file values with the environment.
func ApplyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Slack.WebToken, EnvWebToken)
	set(&cfg.Slack.CookieToken, EnvCookieToken)
	set(&cfg.Audit.ChannelID, EnvLogsChannel)
	set(&cfg.Slack.APIBase, EnvAPIBase)
	set(&cfg.Log.Level, EnvLogLevel)

	// Any value other than stdio or http selects sse.
	if v, ok := os.LookupEnv(EnvTransport); ok && v != "" {
		switch strings.ToLower(v) {
		case "stdio", "http":
			cfg.Server.Transport = strings.ToLower(v)
		default:
			cfg.Server.Transport = "sse"
		}
	}
	cfg.Slack.APIBase = strings.TrimRight(cfg.Slack.APIBase, "/")
}
