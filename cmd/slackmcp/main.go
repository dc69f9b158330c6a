package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slackmcp/internal/config"
	"slackmcp/internal/logging"
	"slackmcp/internal/tool"
)

var (
	version    = "0.1.0"
	configPath string // overridable via --config flag
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "slackmcp",
		Short:         "Slack workspace tools for AI agents over MCP",
		Long:          "slackmcp exposes channels, DMs, threads and search of a Slack workspace as MCP tools, using browser session credentials.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.slackmcp/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	root.AddCommand(serveCmd())
	root.AddCommand(callCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(configCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(serviceCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("slackmcp", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (stdio, sse or http)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
				if err := config.Validate(cfg); err != nil {
					return err
				}
			}
			if err := config.ValidateSession(cfg); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.auditLog != nil && cfg.Audit.FlushInterval > 0 {
				go rt.auditLog.Run(ctx, cfg.Audit.FlushInterval)
			}
			return rt.Server().Serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "override server.transport (stdio, sse, http)")
	return cmd
}

func callCmd() *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its result",
		Example: `  slackmcp call search_messages --args '{"query":"deploy failed","after":"last week"}'
  slackmcp call get_thread_by_link --args '{"thread_link":"https://acme.slack.com/archives/C0123456/p1700000000000100"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw map[string]any
			if strings.TrimSpace(argsJSON) != "" {
				dec := json.NewDecoder(strings.NewReader(argsJSON))
				dec.UseNumber()
				if err := dec.Decode(&raw); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Server.Transport = "stdio"
			if err := config.ValidateSession(cfg); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			res := rt.dispatcher.Dispatch(ctx, args[0], raw)
			text, isErr := tool.Render(res)
			fmt.Println(text)
			if isErr {
				return fmt.Errorf("%s failed", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&argsJSON, "args", "a", "", "tool arguments as a JSON object")
	return cmd
}

func toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools and their arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg := catalog(cfg, nil)
			defs := reg.Definitions()

			if asJSON {
				out := make([]map[string]any, 0, len(defs))
				for _, d := range defs {
					out = append(out, map[string]any{
						"name":        d.Name,
						"description": d.Description,
						"write":       d.Write,
						"inputSchema": d.Schema.JSONSchema(),
					})
				}
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			for _, d := range defs {
				kind := "read"
				if d.Write {
					kind = "write"
				}
				fmt.Printf("%-22s %-5s %s\n", d.Name, kind, d.Description)
				for _, p := range d.Schema {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Printf("    %-16s %-7s%s\n", p.Name, p.Type, req)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON schemas")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err == nil {
				return fmt.Errorf("%s already exists", cfgPath)
			}
			if err := config.Save(config.ExpandPath(cfgPath), config.Defaults()); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Println("Next: run 'slackmcp setup' or 'slackmcp login' to add credentials.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. search.maxCount)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. writes.enabled false)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			stripEnvSecrets(cfg)
			if err := config.Save(config.ExpandPath(cfgPath), cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("%s = %s (saved to %s)\n", args[0], args[1], cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "show",
		Aliases: []string{"list"},
		Short:   "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, pv := range config.ListPaths(config.Sanitize(cfg)) {
				fmt.Printf("%-32s %v\n", pv.Path, pv.Value)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// stripEnvSecrets drops tokens that came from the environment so saving the
// config never copies them into the file.
func stripEnvSecrets(cfg *config.Config) {
	if _, ok := os.LookupEnv(config.EnvWebToken); ok {
		cfg.Slack.WebToken = ""
	}
	if _, ok := os.LookupEnv(config.EnvCookieToken); ok {
		cfg.Slack.CookieToken = ""
	}
}
