// Package gateway adapts the external payment provider to the calls the
// donation services make: order creation, capture check, refund and
// notification parsing.
package gateway

import (
	"context"

	"donation-service/internal/domain"

	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Donor     domain.Donor
}

// Order is the provider side of a checkout. OrderID is the id the provider
// reports back in status checks and notifications.
type Order struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type CaptureStatus string

const (
	CaptureCaptured CaptureStatus = "captured"
	CaptureDeclined CaptureStatus = "declined"
	CapturePending  CaptureStatus = "pending"
)

type Capture struct {
	Status           CaptureStatus
	GatewayPaymentID string
	Fee              decimal.Decimal
	Reason           string
}

type RefundRequest struct {
	OrderID          string
	GatewayPaymentID string
	Amount           decimal.Decimal
	Reason           string
	// Key makes the provider treat a retried refund as the same request.
	Key string
}

type Refund struct {
	Key    string
	Amount decimal.Decimal
}

// Event is a verified payment status notification.
type Event struct {
	OrderID          string          `json:"order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Status           CaptureStatus   `json:"status"`
	Fee              decimal.Decimal `json:"fee"`
	Reason           string          `json:"reason,omitempty"`
}

// call runs fn and gives up once ctx is done. The provider SDK has no
// context support, so an abandoned call keeps running in the background
// and its result is dropped.
func call[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return r.val, domain.NewGatewayError(op, r.err)
		}
		return r.val, nil
	case <-ctx.Done():
		var zero T
		return zero, domain.NewGatewayError(op, ctx.Err())
	}
}
