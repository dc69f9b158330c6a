package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slackmcp/internal/audit"
	"slackmcp/internal/config"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and redeliver queued audit records",
	}

	var listLimit, flushLimit int
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List audit records waiting for redelivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ob, err := openOutbox(cfg)
			if err != nil {
				return err
			}
			defer ob.Close()

			ctx := context.Background()
			total, err := ob.Count(ctx)
			if err != nil {
				return err
			}
			items, err := ob.Pending(ctx, listLimit)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Println("No queued audit records.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUED\tTOOL\tIDENTITY\tOUTCOME\tATTEMPTS\tLAST ERROR")
			for _, p := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					humanize.Time(p.QueuedAt), p.Record.Tool, p.Record.Identity,
					p.Record.Outcome, p.Attempts, p.LastError)
			}
			w.Flush()
			if total > len(items) {
				fmt.Printf("... and %s more\n", humanize.Comma(int64(total-len(items))))
			}
			return nil
		},
	}
	pending.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum records to list (0 for all)")

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Redeliver queued audit records to the audit channel now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.ValidateSession(cfg); err != nil {
				return err
			}
			if cfg.Slack.WebToken == "" {
				return fmt.Errorf("flush needs process-wide tokens (%s, %s)", config.EnvWebToken, config.EnvCookieToken)
			}

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.outbox == nil {
				return fmt.Errorf("audit.outboxPath is not set")
			}

			sent, err := rt.auditLog.Flush(ctx, flushLimit)
			fmt.Printf("Redelivered %s record(s)\n", humanize.Comma(int64(sent)))
			if err != nil {
				return err
			}
			left, _ := rt.outbox.Count(ctx)
			if left > 0 {
				fmt.Printf("%s record(s) still queued\n", humanize.Comma(int64(left)))
			}
			return nil
		},
	}
	flush.Flags().IntVarP(&flushLimit, "limit", "n", 0, "maximum records to redeliver (0 for all)")

	cmd.AddCommand(pending, flush)
	return cmd
}

func openOutbox(cfg *config.Config) (*audit.Outbox, error) {
	if cfg.Audit.OutboxPath == "" {
		return nil, fmt.Errorf("audit.outboxPath is not set")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return audit.NewOutbox(cfg.Audit.OutboxPath, logger.Named("outbox"))
}
