// Package api exposes the donation services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"donation-service/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// WebhookHandler applies a raw provider notification.
type WebhookHandler interface {
	HandleMessage(ctx context.Context, message []byte) error
}

type Services struct {
	Payments      *service.PaymentService
	Subscriptions *service.SubscriptionService
	Refunds       *service.RefundService
	Documents     *service.DocumentService
	Queries       *service.QueryService
	Scheduler     *service.Scheduler
	Webhook       WebhookHandler
	Now           func() time.Time
}

func (s *Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NewRouter builds the HTTP surface. Certificate numbers contain slashes, so
// routing is done on the escaped path.
func NewRouter(svc *Services, jwtSecret []byte) *gin.Engine {
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := r.Group("/")
	{
		public.POST("/webhooks/midtrans", GatewayWebhook(svc))
		public.GET("/certificates/:number/verify", VerifyCertificate(svc))
	}

	donations := r.Group("/donations")
	donations.Use(OptionalAuth(jwtSecret))
	{
		donations.POST("", CreateDonation(svc))
	}

	auth := AuthMiddleware(jwtSecret)

	payments := r.Group("/payments")
	payments.Use(auth)
	{
		payments.GET("", ListPayments(svc))
		payments.GET("/:id", GetPayment(svc))
		payments.POST("/:id/capture", CapturePayment(svc))
		payments.POST("/:id/refunds", RefundPayment(svc))
		payments.GET("/:id/receipt", GetReceipt(svc))
		payments.POST("/:id/certificate", IssueCertificate(svc))
		payments.POST("/:id/certificate/reissue", ReissueCertificate(svc))
	}

	subscriptions := r.Group("/subscriptions")
	subscriptions.Use(auth)
	{
		subscriptions.POST("", CreateSubscription(svc))
		subscriptions.GET("", ListSubscriptions(svc))
		subscriptions.GET("/:id", GetSubscription(svc))
		subscriptions.POST("/:id/pause", PauseSubscription(svc))
		subscriptions.POST("/:id/resume", ResumeSubscription(svc))
		subscriptions.POST("/:id/cancel", CancelSubscription(svc))
	}

	admin := r.Group("/admin")
	admin.Use(auth)
	{
		admin.POST("/subscriptions/charge-due", ChargeDue(svc))
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("HTTP request")
	}
}
