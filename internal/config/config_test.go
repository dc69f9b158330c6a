package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCfg() *Config {
	cfg := Defaults()
	cfg.Slack.WebToken = "xoxc-1234-5678-abcdef"
	cfg.Slack.CookieToken = "xoxd-abcdefghijkl"
	cfg.Audit.ChannelID = "C0AUDIT01"
	return cfg
}

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_Transport(t *testing.T) {
	for _, tr := range []string{"stdio", "sse", "http"} {
		cfg := Defaults()
		cfg.Server.Transport = tr
		assert.NoError(t, Validate(cfg), tr)
	}
	cfg := Defaults()
	cfg.Server.Transport = "carrier-pigeon"
	assert.Error(t, Validate(cfg))
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Search.PageSize = 0
	cfg.RateLimit.Burst = 0
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.pageSize")
	assert.Contains(t, err.Error(), "rateLimit.burst")
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidate_AuditChannelShape(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.ChannelID = "#audit"
	assert.Error(t, Validate(cfg))

	cfg.Audit.ChannelID = "C0AUDIT01"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_Timezone(t *testing.T) {
	cfg := Defaults()
	cfg.Search.Timezone = "Mars/Olympus"
	assert.Error(t, Validate(cfg))
}

func TestValidate_Backoff(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.MaxBackoff = cfg.RateLimit.BaseBackoff / 2
	assert.Error(t, Validate(cfg))
}

// --- ValidateSession ---

func TestValidateSession_Complete(t *testing.T) {
	require.NoError(t, ValidateSession(sessionCfg()))
}

func TestValidateSession_MissingTokensStdio(t *testing.T) {
	cfg := sessionCfg()
	cfg.Slack.WebToken = ""
	cfg.Slack.CookieToken = ""
	err := ValidateSession(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_XOXC_TOKEN")
	assert.Contains(t, err.Error(), "SLACK_XOXD_TOKEN")
}

func TestValidateSession_NetworkTransportAllowsPerRequestTokens(t *testing.T) {
	cfg := sessionCfg()
	cfg.Server.Transport = "sse"
	cfg.Slack.WebToken = ""
	cfg.Slack.CookieToken = ""
	assert.NoError(t, ValidateSession(cfg))
}

func TestValidateSession_WrongTokenType(t *testing.T) {
	cfg := sessionCfg()
	cfg.Slack.WebToken = "xoxb-bot-token"
	assert.Error(t, ValidateSession(cfg))
}

func TestValidateSession_MissingAuditChannel(t *testing.T) {
	cfg := sessionCfg()
	cfg.Audit.ChannelID = ""
	err := ValidateSession(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOGS_CHANNEL_ID")
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Search.MaxCount = 250
	original.RateLimit.MaxBackoff = 45 * time.Second
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, loaded.Search.MaxCount)
	assert.Equal(t, 45*time.Second, loaded.RateLimit.MaxBackoff)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://slack.com/api", cfg.Slack.APIBase)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slack: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_AUDIT_CHANNEL", "C0PLACE01")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "audit:\n  channelId: ${TEST_AUDIT_CHANNEL}\nsearch:\n  timezone: ${TEST_UNSET_TZ:-UTC}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "C0PLACE01", cfg.Audit.ChannelID)
	assert.Equal(t, "UTC", cfg.Search.Timezone)
}

// --- Env ---

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(EnvWebToken, " xoxc-env ")
	t.Setenv(EnvCookieToken, "xoxd-env")
	t.Setenv(EnvLogsChannel, "C0ENV0001")
	t.Setenv(EnvAPIBase, "http://127.0.0.1:9999/api/")
	t.Setenv(EnvTransport, "SSE")

	cfg := Defaults()
	ApplyEnv(cfg)
	assert.Equal(t, "xoxc-env", cfg.Slack.WebToken)
	assert.Equal(t, "xoxd-env", cfg.Slack.CookieToken)
	assert.Equal(t, "C0ENV0001", cfg.Audit.ChannelID)
	assert.Equal(t, "http://127.0.0.1:9999/api", cfg.Slack.APIBase)
	assert.Equal(t, "sse", cfg.Server.Transport)
}

func TestApplyEnv_UnknownTransportSelectsSSE(t *testing.T) {
	t.Setenv(EnvTransport, "streamable")
	cfg := Defaults()
	ApplyEnv(cfg)
	assert.Equal(t, "sse", cfg.Server.Transport)
}

func TestDotEnv_WriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteDotEnv(path, map[string]string{"SLACKMCP_TEST_KEY": "one"}))
	require.NoError(t, WriteDotEnv(path, map[string]string{"SLACKMCP_TEST_OTHER": "two"}))

	t.Setenv("SLACKMCP_TEST_KEY", "")
	os.Unsetenv("SLACKMCP_TEST_KEY")
	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "one", os.Getenv("SLACKMCP_TEST_KEY"))
	assert.Equal(t, "two", os.Getenv("SLACKMCP_TEST_OTHER"))
	os.Unsetenv("SLACKMCP_TEST_OTHER")
}

// --- Accessor ---

func TestGetByPath(t *testing.T) {
	val, err := GetByPath(Defaults(), "search.threadLimit")
	require.NoError(t, err)
	assert.Equal(t, 200, val)

	_, err = GetByPath(Defaults(), "nonexistent.path")
	assert.Error(t, err)
}

func TestSetByPath_Types(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "writes.enabled", "false"))
	require.NoError(t, SetByPath(cfg, "search.maxCount", "50"))
	require.NoError(t, SetByPath(cfg, "server.callTimeout", "45s"))
	require.NoError(t, SetByPath(cfg, "log.level", "debug"))

	assert.False(t, cfg.Writes.Enabled)
	assert.Equal(t, 50, cfg.Search.MaxCount)
	assert.Equal(t, 45*time.Second, cfg.Server.CallTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestSetByPath_UnknownSection(t *testing.T) {
	assert.Error(t, SetByPath(Defaults(), "nope.value", "1"))
	assert.Error(t, SetByPath(Defaults(), "", "1"))
}

func TestSanitize_MasksTokens(t *testing.T) {
	cfg := sessionCfg()
	s := Sanitize(cfg)
	assert.Equal(t, "xoxc****cdef", s.Slack.WebToken)
	assert.NotContains(t, s.Slack.CookieToken, "abcdefghijkl")
	// original untouched
	assert.Equal(t, "xoxc-1234-5678-abcdef", cfg.Slack.WebToken)
}

func TestListPaths_Sorted(t *testing.T) {
	paths := ListPaths(Defaults())
	require.NotEmpty(t, paths)
	for i := 1; i < len(paths); i++ {
		assert.Less(t, paths[i-1].Path, paths[i].Path)
	}
}
