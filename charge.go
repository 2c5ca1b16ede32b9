package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// chargeDueCmd runs one billing pass, for use from cron.
func chargeDueCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "charge-due",
		Short: "Charge every active subscription whose next payment date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if asOf != "" {
				if now, err = time.Parse(time.RFC3339, asOf); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.scheduler.ChargeDue(ctx, now)
			if err != nil {
				return err
			}
			if len(report.Errors) > 0 {
				log.WithField("errors", len(report.Errors)).Warn("Some subscriptions were not charged")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC 3339 time to bill as of (default now)")
	return cmd
}
