package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"donation-service/internal/domain"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidSignature = errors.New("invalid notification signature")

var hundred = decimal.NewFromInt(100)

type MidtransConfig struct {
	ServerKey  string
	Production bool
	// FeePercent is the provider's charge on captured amounts. The status
	// API does not report fees, so they are derived from the gross amount.
	FeePercent decimal.Decimal
	Timeout    time.Duration
}

type Midtrans struct {
	snap snap.Client
	core coreapi.Client
	cfg  MidtransConfig
}

func NewMidtrans(cfg MidtransConfig) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	m := &Midtrans{cfg: cfg}
	m.snap.New(cfg.ServerKey, env)
	m.core.New(cfg.ServerKey, env)
	return m
}

func (m *Midtrans) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// wholeUnits converts an amount to the integer the provider expects.
func wholeUnits(amount decimal.Decimal) (int64, error) {
	if !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s has a fractional part the provider cannot charge", domain.ErrValidation, amount)
	}
	return amount.IntPart(), nil
}

func sdkError(e *midtrans.Error) error {
	if e == nil {
		return nil
	}
	return fmt.Errorf("midtrans status %d: %s", e.StatusCode, e.Message)
}

func (m *Midtrans) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	gross, err := wholeUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Donor.DisplayName(),
			Email: req.Donor.Email,
			Phone: req.Donor.Phone,
		},
	}
	resp, err := call(ctx, "create_order", func() (*snap.Response, error) {
		r, e := m.snap.CreateTransaction(snapReq)
		return r, sdkError(e)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"reference": req.Reference, "amount": req.Amount.String()}).Info("Gateway order created")
	return &Order{OrderID: req.Reference, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (m *Midtrans) CapturePayment(ctx context.Context, orderID string) (*Capture, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := call(ctx, "capture", func() (*coreapi.TransactionStatusResponse, error) {
		r, e := m.core.CheckTransaction(orderID)
		return r, sdkError(e)
	})
	if err != nil {
		return nil, err
	}
	status := classify(resp.TransactionStatus, resp.FraudStatus)
	capture := &Capture{Status: status, GatewayPaymentID: resp.TransactionID, Fee: decimal.Zero}
	switch status {
	case CaptureCaptured:
		gross, err := decimal.NewFromString(resp.GrossAmount)
		if err != nil {
			return nil, domain.NewGatewayError("capture", fmt.Errorf("unreadable gross amount %q: %w", resp.GrossAmount, err))
		}
		capture.Fee = m.fee(gross)
	case CaptureDeclined:
		capture.Reason = fmt.Sprintf("%s: %s", resp.TransactionStatus, resp.StatusMessage)
	}
	return capture, nil
}

func (m *Midtrans) RefundPayment(ctx context.Context, req RefundRequest) (*Refund, error) {
	amount, err := wholeUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err = call(ctx, "refund", func() (*coreapi.RefundResponse, error) {
		r, e := m.core.RefundTransaction(req.OrderID, &coreapi.RefundReq{
			RefundKey: req.Key,
			Amount:    amount,
			Reason:    req.Reason,
		})
		return r, sdkError(e)
	})
	if err != nil {
		return nil, err
	}
	return &Refund{Key: req.Key, Amount: req.Amount}, nil
}

func (m *Midtrans) fee(gross decimal.Decimal) decimal.Decimal {
	if m.cfg.FeePercent.IsZero() {
		return decimal.Zero
	}
	return gross.Mul(m.cfg.FeePercent).Div(hundred).Round(2)
}

// Notification is the HTTP notification body the provider posts.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
	StatusMessage     string `json:"status_message"`
}

// ParseNotification verifies the signature of a raw notification and turns
// it into an Event.
func (m *Midtrans) ParseNotification(body []byte) (*Event, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: malformed notification: %v", domain.ErrValidation, err)
	}
	if !VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey, m.cfg.ServerKey) {
		return nil, ErrInvalidSignature
	}
	ev := &Event{
		OrderID:          n.OrderID,
		GatewayPaymentID: n.TransactionID,
		Status:           classify(n.TransactionStatus, n.FraudStatus),
		Fee:              decimal.Zero,
	}
	switch ev.Status {
	case CaptureCaptured:
		if gross, err := decimal.NewFromString(n.GrossAmount); err == nil {
			ev.Fee = m.fee(gross)
		}
	case CaptureDeclined:
		ev.Reason = n.TransactionStatus
	}
	return ev, nil
}

// VerifySignature checks sha512(orderID + statusCode + grossAmount + serverKey).
func VerifySignature(orderID, statusCode, grossAmount, signature, serverKey string) bool {
	hash := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	expected := hex.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// classify maps provider transaction states onto capture outcomes. Anything
// not listed is still in flight.
func classify(transactionStatus, fraudStatus string) CaptureStatus {
	switch transactionStatus {
	case "settlement":
		return CaptureCaptured
	case "capture":
		if fraudStatus == "" || fraudStatus == "accept" {
			return CaptureCaptured
		}
		if fraudStatus == "deny" {
			return CaptureDeclined
		}
	case "deny", "cancel", "expire", "failure":
		return CaptureDeclined
	}
	return CapturePending
}
