package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
	"donation-service/internal/repository"
	"donation-service/internal/sender"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

var (
	admin = domain.Actor{UserID: "admin-1", Email: "ops@example.org", Role: domain.RoleAdmin}
	donor = domain.Actor{UserID: "user-1", Email: "asha@example.org", Role: domain.RoleDonor}
	other = domain.Actor{UserID: "user-2", Email: "ravi@example.org", Role: domain.RoleDonor}
)

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// testClock is a settable clock shared by all services in a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeGateway records calls and returns scripted outcomes.
type fakeGateway struct {
	mu sync.Mutex

	orderErr   error
	capture    gateway.Capture
	captureErr error
	// blockCapture makes CapturePayment wait for the context deadline.
	blockCapture bool
	refundErr    error

	orders   []gateway.OrderRequest
	captures []string
	refunds  []gateway.RefundRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{capture: gateway.Capture{Status: gateway.CaptureCaptured, GatewayPaymentID: "tx-1", Fee: decimal.Zero}}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.orders = append(g.orders, req)
	return &gateway.Order{OrderID: "order-" + req.Reference, RedirectURL: "https://pay.example/" + req.Reference}, nil
}

func (g *fakeGateway) CapturePayment(ctx context.Context, orderID string) (*gateway.Capture, error) {
	g.mu.Lock()
	g.captures = append(g.captures, orderID)
	block, capture, err := g.blockCapture, g.capture, g.captureErr
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, domain.NewGatewayError("capture", ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return &capture, nil
}

func (g *fakeGateway) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return &gateway.Refund{Key: req.Key, Amount: req.Amount}, nil
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []string
}

func (n *fakeNotifier) PaymentCompleted(ctx context.Context, p *domain.PaymentRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, p.ID)
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) Put(ctx context.Context, filename, contentType string, content []byte, metadata map[string]string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, filename)
	return filename, nil
}

// fakeSender fails the first failures calls.
type fakeSender struct {
	failures int
	calls    int
	last     sender.Message
}

func (s *fakeSender) SendEmail(ctx context.Context, msg sender.Message) error {
	s.calls++
	s.last = msg
	if s.calls <= s.failures {
		return errors.New("smtp: 421 service not available")
	}
	return nil
}

type fixture struct {
	store         *repository.MemoryStore
	gateway       *fakeGateway
	notifier      *fakeNotifier
	archive       *fakeArchive
	clock         *testClock
	settings      Settings
	payments      *PaymentService
	subscriptions *SubscriptionService
	refunds       *RefundService
	documents     *DocumentService
	queries       *QueryService
	scheduler     *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
		archive:  &fakeArchive{},
		clock:    &testClock{now: testNow},
	}
	f.settings = Settings{
		Currency:          "INR",
		ReceiptPrefix:     "RCPT",
		CertificatePrefix: "80G",
		DeductiblePercent: decimal.NewFromInt(50),
		Organization: domain.Organization{
			Name:               "Asha Foundation",
			PAN:                "AAATA1234F",
			RegistrationNumber: "AAATA1234FF20214",
			VerifyBaseURL:      "https://asha.example.org",
		},
		GatewayTimeout: 50 * time.Millisecond,
		Now:            f.clock.Now,
	}
	f.subscriptions = NewSubscriptionService(f.store, f.settings)
	f.payments = NewPaymentService(f.store, f.gateway, f.subscriptions, f.notifier, f.settings)
	f.refunds = NewRefundService(f.store, f.gateway, f.settings)
	f.documents = NewDocumentService(f.store, f.store, f.archive, f.settings)
	f.queries = NewQueryService(f.store, f.store, f.settings)
	f.scheduler = NewScheduler(f.subscriptions, f.payments, f.store, f.gateway, f.settings)
	return f
}

var pendingSeq int

// pending stores a pending payment owned by the donor actor.
func (f *fixture) pending(t *testing.T, gross string) *domain.PaymentRecord {
	t.Helper()
	pendingSeq++
	p, err := f.payments.CreatePending(context.Background(), admin, PendingRequest{
		Reference: fmt.Sprintf("ref-%d", pendingSeq),
		OrderID:   fmt.Sprintf("order-%d", pendingSeq),
		Amount:    amount(gross),
		Donor:     domain.Donor{UserID: donor.UserID, Name: "Asha Rao", Email: donor.Email, PAN: "ABCDE1234F"},
	})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	return p
}

// completed stores a completed payment with the given fee.
func (f *fixture) completed(t *testing.T, gross, fee string) *domain.PaymentRecord {
	t.Helper()
	p := f.pending(t, gross)
	p, err := f.payments.MarkCompleted(context.Background(), admin, p.ID, "tx-"+p.ID, amount(fee))
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	return p
}

func (f *fixture) subscription(t *testing.T, amt string, freq domain.Frequency, first time.Time) *domain.Subscription {
	t.Helper()
	sub, err := f.subscriptions.Create(context.Background(), donor, SubscriptionRequest{
		Donor:           domain.Donor{Name: "Asha Rao", Email: donor.Email},
		Amount:          amount(amt),
		Frequency:       freq,
		FirstChargeDate: &first,
	})
	if err != nil {
		t.Fatalf("Create subscription: %v", err)
	}
	return sub
}
