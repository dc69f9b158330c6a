package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slackmcp/internal/config"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: audit channel → transport → writes → session tokens",
		Long: `Guides you through the audit channel, the MCP transport, whether write
tools are enabled, and the session tokens. Settings go to the config file;
tokens go to the env file (--env-file), never to the config.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}
	yes := func(def bool) (bool, error) {
		d := "n"
		if def {
			d = "y"
		}
		ans, err := prompt(d)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(strings.ToLower(ans), "y"), nil
	}

	// Step 1: Audit channel
	fmt.Println("\n--- Step 1: Audit channel ---")
	fmt.Fprint(os.Stdout, "Channel ID that receives one record per tool call (e.g. C0123456789)")
	ch, err := prompt(cfg.Audit.ChannelID)
	if err != nil {
		return err
	}
	cfg.Audit.ChannelID = ch

	// Step 2: Transport
	fmt.Println("\n--- Step 2: MCP transport ---")
	transports := []struct{ ID, Desc string }{
		{"stdio", "Launched by the MCP client (Claude Desktop, editors)"},
		{"sse", "HTTP server with server-sent events"},
		{"http", "Streamable HTTP server"},
	}
	defNum := "1"
	for i, t := range transports {
		fmt.Fprintf(os.Stdout, "  %d) %-6s %s\n", i+1, t.ID, t.Desc)
		if t.ID == cfg.Server.Transport {
			defNum = fmt.Sprint(i + 1)
		}
	}
	fmt.Fprint(os.Stdout, "Choose transport (1–3)")
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(transports) {
		idx = 1
	}
	cfg.Server.Transport = transports[idx-1].ID
	if cfg.Server.Transport != "stdio" {
		fmt.Fprint(os.Stdout, "Listen port")
		port, err := prompt(fmt.Sprint(cfg.Server.Port))
		if err != nil {
			return err
		}
		fmt.Sscanf(port, "%d", &cfg.Server.Port)
	}

	// Step 3: Writes
	fmt.Println("\n--- Step 3: Write tools ---")
	fmt.Fprint(os.Stdout, "Enable posting, DMs, reactions and joins? (y/n)")
	if cfg.Writes.Enabled, err = yes(cfg.Writes.Enabled); err != nil {
		return err
	}
	if cfg.Writes.Enabled {
		fmt.Fprint(os.Stdout, "Restrict writes to channels (comma-separated names, IDs or regular expressions; empty for all)")
		allow, err := prompt(strings.Join(cfg.Writes.AllowChannels, ","))
		if err != nil {
			return err
		}
		cfg.Writes.AllowChannels = splitList(allow)
	}

	// Step 4: Tokens
	fmt.Println("\n--- Step 4: Session tokens ---")
	fmt.Println("  Paste the xoxc- token and the d cookie (xoxd-), or leave empty and run 'slackmcp login' later.")
	fmt.Fprint(os.Stdout, "xoxc token")
	webToken, err := prompt("")
	if err != nil {
		return err
	}
	var cookie string
	if webToken != "" {
		fmt.Fprint(os.Stdout, "xoxd cookie")
		if cookie, err = prompt(""); err != nil {
			return err
		}
	}

	// Tokens live in the env file only.
	cfg.Slack.WebToken, cfg.Slack.CookieToken = "", ""
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(config.ExpandPath(cfgPath), cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)

	values := map[string]string{config.EnvLogsChannel: cfg.Audit.ChannelID}
	if webToken != "" {
		values[config.EnvWebToken] = webToken
		values[config.EnvCookieToken] = cookie
	}
	if err := config.WriteDotEnv(envFile, values); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Environment saved to %s\n", envFile)

	fmt.Println("\nNext steps:")
	if webToken == "" {
		fmt.Println("  slackmcp login --workspace https://<team>.slack.com")
	}
	fmt.Println("  slackmcp doctor")
	fmt.Println("  slackmcp serve")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
