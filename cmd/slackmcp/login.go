package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slackmcp/internal/browser"
	"slackmcp/internal/config"
	"slackmcp/internal/slackapi"
)

func loginCmd() *cobra.Command {
	var (
		workspace string
		timeout   time.Duration
		headless  bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through Chrome and save the session tokens",
		Long: `Opens Chrome on the workspace, waits until you are signed in, then reads
the xoxc- token and the d cookie from the browser and writes them to the
env file (--env-file). The browser profile is kept, so later runs can
refresh the tokens without signing in again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workspace == "" {
				workspace = cfg.Slack.WorkspaceURL
			}
			if workspace == "" {
				return fmt.Errorf("--workspace is required (e.g. https://acme.slack.com)")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Slack.ProfileDir,
				Headless:   headless,
				Logger:     logger.Named("browser"),
			})
			fmt.Printf("Waiting for a signed-in session on %s (up to %s)...\n", workspace, timeout)
			got, err := bridge.Capture(ctx, workspace, 2*time.Second)
			if err != nil {
				return fmt.Errorf("capture session: %w", err)
			}

			api := slackapi.NewAPI(slackapi.NewClient(slackapi.ClientConfig{
				APIBase:     cfg.Slack.APIBase,
				Credentials: slackapi.Credentials{WebToken: got.WebToken, CookieToken: got.CookieToken},
				MaxAttempts: 1,
			}))
			id, err := api.AuthTest(ctx)
			if err != nil {
				return fmt.Errorf("captured tokens were rejected: %w", err)
			}

			if err := config.WriteDotEnv(envFile, map[string]string{
				config.EnvWebToken:    got.WebToken,
				config.EnvCookieToken: got.CookieToken,
			}); err != nil {
				return err
			}
			fmt.Printf("Signed in as %s on %s\n", id.Label(), id.URL)
			fmt.Printf("Tokens saved to %s\n", envFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace URL (default slack.workspaceURL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for sign-in")
	cmd.Flags().BoolVar(&headless, "headless", false, "reuse an existing browser profile without a window")
	return cmd
}
