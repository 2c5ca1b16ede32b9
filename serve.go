package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"donation-service/internal/api"
	"donation-service/internal/consumer"
	"donation-service/internal/handler"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var billingInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the gateway event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			log.Info("Starting donation service...")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			events := handler.NewGatewayEventHandler(a.gateway, a.payments)
			errCh := make(chan error, 2)

			if cfg.Kafka.Enabled() {
				kc, err := consumer.NewKafkaConsumer(consumer.Config{
					BootstrapServers: cfg.Kafka.BootstrapServers,
					GroupID:          cfg.Kafka.GroupID,
					Topic:            cfg.Kafka.Topic,
				}, events)
				if err != nil {
					return err
				}
				defer kc.Close()
				go func() {
					if err := kc.Start(ctx); err != nil {
						errCh <- err
					}
				}()
			} else {
				log.Info("KAFKA_BOOTSTRAP_SERVERS is not set, relayed gateway events are disabled")
			}

			if billingInterval > 0 {
				go runBilling(ctx, a, billingInterval)
			}

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(&api.Services{
				Payments:      a.payments,
				Subscriptions: a.subscriptions,
				Refunds:       a.refunds,
				Documents:     a.documents,
				Queries:       a.queries,
				Scheduler:     a.scheduler,
				Webhook:       events,
			}, []byte(cfg.JWTSecret))
			srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

			go func() {
				log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info("Shutdown signal received")
			case err = <-errCh:
				log.WithError(err).Error("Service component stopped")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				log.WithError(shutdownErr).Error("HTTP server shutdown failed")
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&billingInterval, "billing-interval", 0, "run the subscription billing scan at this interval (0 disables it)")
	return cmd
}

// runBilling charges due subscriptions until ctx is cancelled.
func runBilling(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if _, err := a.scheduler.ChargeDue(ctx, t.UTC()); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Subscription billing scan failed")
			}
		}
	}
}
