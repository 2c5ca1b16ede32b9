package handler

import (
	"context"
	"errors"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"

	log "github.com/sirupsen/logrus"
)

// NotificationParser verifies raw provider notifications
type NotificationParser interface {
	ParseNotification(body []byte) (*gateway.Event, error)
}

// PaymentEventService defines the interface for applying gateway events
type PaymentEventService interface {
	HandleGatewayEvent(ctx context.Context, ev gateway.Event) error
}

type gatewayEventHandler struct {
	parser   NotificationParser
	payments PaymentEventService
}

func NewGatewayEventHandler(parser NotificationParser, payments PaymentEventService) *gatewayEventHandler {
	return &gatewayEventHandler{parser: parser, payments: payments}
}

// HandleMessage applies one relayed provider notification. Messages that can
// never succeed are logged and dropped; anything else is returned so the
// consumer can report it.
func (h *gatewayEventHandler) HandleMessage(ctx context.Context, message []byte) error {
	ev, err := h.parser.ParseNotification(message)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) || errors.Is(err, domain.ErrValidation) {
			log.WithError(err).Warn("Dropping unverifiable gateway notification")
			return nil
		}
		return err
	}

	logCtx := log.WithFields(log.Fields{"order_id": ev.OrderID, "status": ev.Status})
	logCtx.Info("Processing gateway event")

	if err := h.payments.HandleGatewayEvent(ctx, *ev); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logCtx.Warn("Gateway event for unknown order")
			return nil
		}
		return fmt.Errorf("failed to apply gateway event for order %s: %w", ev.OrderID, err)
	}
	return nil
}
