package service

import (
	"context"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
	"donation-service/internal/validator"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type RefundRequest struct {
	PaymentID string
	Amount    decimal.Decimal
	Reason    string
}

type RefundService struct {
	repo     PaymentRepository
	gateway  Gateway
	settings Settings
}

func NewRefundService(repo PaymentRepository, gw Gateway, settings Settings) *RefundService {
	return &RefundService{repo: repo, gateway: gw, settings: settings}
}

// Refund returns part or all of a completed payment. Checks run in order:
// the payment exists, it is completed, the amount fits the refundable
// balance, a reason is given. The gateway is called while the row is locked, so two concurrent
// partial refunds can never both pass the balance check.
func (s *RefundService) Refund(ctx context.Context, actor domain.Actor, req RefundRequest) (*domain.PaymentRecord, error) {
	if err := requireAdmin(actor, "refund payments"); err != nil {
		return nil, err
	}

	var before domain.PaymentRecord
	p, err := s.repo.ModifyPayment(ctx, req.PaymentID, func(p *domain.PaymentRecord) error {
		before = *p
		if err := p.CheckRefund(req.Amount); err != nil {
			return err
		}
		if err := validator.ValidateReason(req.Reason); err != nil {
			return validationError(err)
		}
		gctx, cancel := s.settings.gatewayContext(ctx)
		defer cancel()
		if _, err := s.gateway.RefundPayment(gctx, gateway.RefundRequest{
			OrderID:          p.OrderID,
			GatewayPaymentID: p.GatewayPaymentID,
			Amount:           req.Amount,
			Reason:           req.Reason,
			Key:              refundKey(p),
		}); err != nil {
			return domain.NewGatewayError("refund", err)
		}
		return p.Refund(req.Amount, req.Reason, s.settings.now())
	})
	if err != nil {
		log.WithFields(log.Fields{
			"payment_id": req.PaymentID,
			"amount":     req.Amount.String(),
			"error":      err,
		}).Warn("Refund rejected")
		return nil, err
	}
	auditPayment("payment.refunded", actor, &before, p)
	return p, nil
}

// refundKey identifies a refund by the balance it started from, so a retry of
// the same request reuses the provider's idempotency key.
func refundKey(p *domain.PaymentRecord) string {
	return fmt.Sprintf("%s-%s", p.ID, p.RefundedAmount.StringFixed(2))
}
