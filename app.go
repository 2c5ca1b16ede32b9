package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"donation-service/internal/archive"
	"donation-service/internal/config"
	"donation-service/internal/gateway"
	"donation-service/internal/repository"
	"donation-service/internal/sender"
	"donation-service/internal/service"

	log "github.com/sirupsen/logrus"
)

// receiptDrainTimeout bounds how long Close waits for queued receipt emails.
const receiptDrainTimeout = 45 * time.Second

// app holds the wired services shared by the commands.
type app struct {
	db            *sql.DB
	gateway       *gateway.Midtrans
	mailer        *service.ReceiptMailer
	payments      *service.PaymentService
	subscriptions *service.SubscriptionService
	refunds       *service.RefundService
	documents     *service.DocumentService
	queries       *service.QueryService
	scheduler     *service.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repository.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return nil, err
		}
	}
	db, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := repository.NewPostgres(db)

	if cfg.Midtrans.ServerKey == "" {
		log.Warn("MIDTRANS_SERVER_KEY is not set, gateway calls will be rejected")
	}
	gw := gateway.NewMidtrans(gateway.MidtransConfig{
		ServerKey:  cfg.Midtrans.ServerKey,
		Production: cfg.Midtrans.Production,
		FeePercent: cfg.Midtrans.FeePercent,
		Timeout:    cfg.GatewayTimeout,
	})

	settings := service.Settings{
		Currency:          cfg.Currency,
		ReceiptPrefix:     cfg.ReceiptPrefix,
		CertificatePrefix: cfg.CertificatePrefix,
		DeductiblePercent: cfg.DeductiblePercent,
		Organization:      cfg.Org.Organization(),
		GatewayTimeout:    cfg.GatewayTimeout,
	}

	var emailSender sender.EmailSender = sender.NoopSender{}
	if cfg.SMTP.Enabled() {
		emailSender = sender.NewSMTPEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Warn("SMTP is not configured, receipt emails are discarded")
	}
	mailer := service.NewReceiptMailer(emailSender, store, settings, cfg.ReceiptRetryDelay)

	var certArchive service.Archive
	if cfg.Archive.Enabled() {
		s3Archive, err := archive.NewS3ArchiveFromEnv(ctx, cfg.Archive.Region, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set up certificate archive: %w", err)
		}
		certArchive = s3Archive
	}

	subs := service.NewSubscriptionService(store, settings)
	payments := service.NewPaymentService(store, gw, subs, mailer, settings)
	return &app{
		db:            db,
		gateway:       gw,
		mailer:        mailer,
		payments:      payments,
		subscriptions: subs,
		refunds:       service.NewRefundService(store, gw, settings),
		documents:     service.NewDocumentService(store, store, certArchive, settings),
		queries:       service.NewQueryService(store, store, settings),
		scheduler:     service.NewScheduler(subs, payments, store, gw, settings),
	}, nil
}

// Close lets queued receipt emails finish, then closes the database their
// delivery log is written to.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), receiptDrainTimeout)
	defer cancel()
	if err := a.mailer.Wait(ctx); err != nil {
		log.WithError(err).Warn("Receipt emails still in flight at exit")
	}
	return a.db.Close()
}
