package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slackmcp/internal/audit"
	"slackmcp/internal/config"
	"slackmcp/internal/slackapi"
)

type checkCounts struct {
	passed, warned, failed int
}

func (c *checkCounts) pass(name, detail string) { printPass(name, detail); c.passed++ }
func (c *checkCounts) warn(name, detail string) { printWarn(name, detail); c.warned++ }
func (c *checkCounts) fail(name, detail string) { printFail(name, detail); c.failed++ }

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your slackmcp installation",
		Long: `Verifies that the configuration, Slack session, audit channel and
outbox are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("slackmcp doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var c checkCounts

			// 1. Config file (optional; env alone is enough)
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				c.warn("Config file", fmt.Sprintf("not found at %s (using defaults and environment)", cfgPath))
			} else {
				c.pass("Config file", cfgPath)
			}

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				c.fail("Config validation", err.Error())
				return summarize(c)
			}
			c.pass("Config validation", "valid")

			// 3. Session settings
			if err := config.ValidateSession(cfg); err != nil {
				c.fail("Session settings", err.Error())
			} else {
				c.pass("Session settings", fmt.Sprintf("audit channel %s", cfg.Audit.ChannelID))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			// 4. Slack session
			var api *slackapi.API
			if cfg.Slack.WebToken == "" {
				c.warn("Slack session", "no process-wide tokens; only per-request credentials will work")
			} else {
				api = slackapi.NewAPI(slackapi.NewClient(slackapi.ClientConfig{
					APIBase: cfg.Slack.APIBase,
					Credentials: slackapi.Credentials{
						WebToken:    cfg.Slack.WebToken,
						CookieToken: cfg.Slack.CookieToken,
					},
					UserAgent:   cfg.Slack.UserAgent,
					MaxAttempts: 1,
				}))
				if id, err := api.AuthTest(ctx); err != nil {
					c.fail("Slack session", err.Error())
					api = nil
				} else {
					c.pass("Slack session", fmt.Sprintf("%s (%s) on %s", id.Label(), id.UserID, id.URL))
				}
			}

			// 5. Audit channel visible to the session
			if api != nil && cfg.Audit.ChannelID != "" {
				if ch, err := api.ConversationInfo(ctx, cfg.Audit.ChannelID); err != nil {
					c.fail("Audit channel", err.Error())
				} else {
					c.pass("Audit channel", "#"+ch.Name)
				}
			}

			// 6. Outbox writable
			if cfg.Audit.OutboxPath == "" {
				c.warn("Audit outbox", "disabled; failed audit posts are dropped")
			} else if err := checkOutbox(ctx, cfg.Audit.OutboxPath, &c); err != nil {
				c.fail("Audit outbox", err.Error())
			}

			// 7. Port for network transports
			if cfg.Server.Transport != "stdio" {
				if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
					c.warn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				} else {
					c.pass("Listen address", cfg.Server.Addr()+" available")
				}
			}

			// 8. Log file writable
			if cfg.Log.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
					c.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					c.pass("Log file", cfg.Log.File)
				}
			}

			if cfg.Writes.Enabled {
				c.pass("Write tools", "enabled")
			} else {
				c.pass("Write tools", "disabled (read-only)")
			}

			return summarize(c)
		},
	}
}

func summarize(c checkCounts) error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", c.passed, c.warned, c.failed)
	if c.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running slackmcp.\n")
		return fmt.Errorf("%d check(s) failed", c.failed)
	}
	if c.warned > 0 {
		fmt.Printf("\nslackmcp should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! slackmcp is ready to run.\n")
	}
	return nil
}

func checkOutbox(ctx context.Context, path string, c *checkCounts) error {
	ob, err := audit.NewOutbox(path, zap.NewNop())
	if err != nil {
		return err
	}
	defer ob.Close()

	n, err := ob.Count(ctx)
	if err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	if n == 0 {
		c.pass("Audit outbox", path)
		return nil
	}
	oldest := ""
	if pending, err := ob.Pending(ctx, 1); err == nil && len(pending) > 0 {
		oldest = ", oldest queued " + humanize.Time(pending[0].QueuedAt)
	}
	c.warn("Audit outbox", fmt.Sprintf("%s records awaiting redelivery%s", humanize.Comma(int64(n)), oldest))
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
