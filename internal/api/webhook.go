package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

// GatewayWebhook accepts provider notifications posted directly. They go
// through the same handler as notifications relayed over Kafka, which drops
// unverifiable payloads, so the provider only sees an error when applying a
// genuine event failed and a retry can help.
func GatewayWebhook(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			badRequest(c, err)
			return
		}
		if err := svc.Webhook.HandleMessage(c.Request.Context(), body); err != nil {
			log.WithError(err).Error("Failed to apply gateway webhook")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "notification could not be applied"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
