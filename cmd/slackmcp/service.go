package main

import (
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.slackmcp.server"
	systemdUnit  = "slackmcp.service"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage slackmcp as a user service (launchd/systemd)",
		Long: `Installs a service that runs 'slackmcp serve' on login. Only the sse and
http transports make sense as a service; stdio servers are started by the
MCP client itself.`,
	}

	var transport string
	install := &cobra.Command{
		Use:   "install",
		Short: "Install the slackmcp network server as a user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport == "stdio" {
				return fmt.Errorf("stdio servers are launched by the MCP client; use --transport sse or http")
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			envPath, err := filepath.Abs(envFile)
			if err != nil {
				return err
			}
			unit := serviceUnit{
				Exec:      execPath,
				Config:    resolveConfigPath(),
				EnvFile:   envPath,
				Transport: transport,
			}
			switch goruntime.GOOS {
			case "darwin":
				return installLaunchd(unit)
			case "linux":
				return installSystemd(unit)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goruntime.GOOS)
			}
		},
	}
	install.Flags().StringVarP(&transport, "transport", "t", "sse", "transport the service serves (sse or http)")

	cmd.AddCommand(install, &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the slackmcp user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch goruntime.GOOS {
			case "darwin":
				return uninstallLaunchd()
			case "linux":
				return uninstallSystemd()
			default:
				return fmt.Errorf("unsupported OS: %s", goruntime.GOOS)
			}
		},
	})
	return cmd
}

type serviceUnit struct {
	Exec      string
	Config    string
	EnvFile   string
	Transport string
}

func (u serviceUnit) render(tmpl string, extra ...string) string {
	r := strings.NewReplacer(append([]string{
		"{{EXEC}}", u.Exec,
		"{{CONFIG}}", u.Config,
		"{{ENV_FILE}}", u.EnvFile,
		"{{TRANSPORT}}", u.Transport,
		"{{LABEL}}", launchdLabel,
	}, extra...)...)
	return r.Replace(tmpl)
}

func installLaunchd(u serviceUnit) error {
	home, _ := os.UserHomeDir()
	plistDir := filepath.Join(home, "Library", "LaunchAgents")
	plistPath := filepath.Join(plistDir, launchdLabel+".plist")

	logPath := filepath.Join(home, ".slackmcp", "logs", "slackmcp.log")
	errLogPath := filepath.Join(home, ".slackmcp", "logs", "slackmcp-error.log")
	os.MkdirAll(filepath.Dir(logPath), 0o755)

	plist := u.render(launchdTemplate, "{{LOG}}", logPath, "{{ERR_LOG}}", errLogPath)
	if err := os.MkdirAll(plistDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return err
	}

	fmt.Printf("Service installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd() error {
	home, _ := os.UserHomeDir()
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Service uninstalled: %s\n", plistPath)
	return nil
}

func installSystemd(u serviceUnit) error {
	home, _ := os.UserHomeDir()
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	unitPath := filepath.Join(unitDir, systemdUnit)

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(u.render(systemdTemplate)), 0o644); err != nil {
		return err
	}

	fmt.Printf("Service installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start slackmcp\n")
	fmt.Printf("To enable: systemctl --user enable slackmcp\n")
	fmt.Printf("To stop:   systemctl --user stop slackmcp\n")
	return nil
}

func uninstallSystemd() error {
	home, _ := os.UserHomeDir()
	unitPath := filepath.Join(home, ".config", "systemd", "user", systemdUnit)
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Service uninstalled: %s\n", unitPath)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--transport</string>
        <string>{{TRANSPORT}}</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
        <string>--env-file</string>
        <string>{{ENV_FILE}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=slackmcp MCP server for Slack
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --transport {{TRANSPORT}} --config {{CONFIG}} --env-file {{ENV_FILE}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
