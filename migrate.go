package main

import (
	"donation-service/internal/repository"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if err := repository.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
				return err
			}
			log.Info("Database migration successfully applied")
			return nil
		},
	}
}
