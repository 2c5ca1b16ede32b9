package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
	"donation-service/internal/repository"
	"donation-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

var (
	secret = []byte("test-secret")
	admin  = domain.Actor{UserID: "admin-1", Email: "ops@example.org", Role: domain.RoleAdmin}
	donor  = domain.Actor{UserID: "user-1", Email: "asha@example.org", Role: domain.RoleDonor}
	other  = domain.Actor{UserID: "user-2", Email: "ravi@example.org", Role: domain.RoleDonor}

	testNow = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu      sync.Mutex
	seq     int
	capture gateway.Capture
	err     error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	return &gateway.Order{OrderID: req.Reference, Token: "snap-token", RedirectURL: "https://pay.example/" + req.Reference}, nil
}

func (g *fakeGateway) CapturePayment(ctx context.Context, orderID string) (*gateway.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	c := g.capture
	return &c, nil
}

func (g *fakeGateway) RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Refund{Key: req.Key, Amount: req.Amount}, nil
}

type fakeWebhook struct {
	bodies [][]byte
	err    error
}

func (w *fakeWebhook) HandleMessage(ctx context.Context, message []byte) error {
	w.bodies = append(w.bodies, message)
	return w.err
}

type testServer struct {
	router  *gin.Engine
	store   *repository.MemoryStore
	gateway *fakeGateway
	webhook *fakeWebhook
	svc     *Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	gw := &fakeGateway{capture: gateway.Capture{Status: gateway.CaptureCaptured, GatewayPaymentID: "tx-1", Fee: decimal.Zero}}
	settings := service.Settings{
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
		GatewayTimeout: time.Second,
		Now:            func() time.Time { return testNow },
	}
	subs := service.NewSubscriptionService(store, settings)
	payments := service.NewPaymentService(store, gw, subs, nil, settings)
	webhook := &fakeWebhook{}
	svc := &Services{
		Payments:      payments,
		Subscriptions: subs,
		Refunds:       service.NewRefundService(store, gw, settings),
		Documents:     service.NewDocumentService(store, store, nil, settings),
		Queries:       service.NewQueryService(store, store, settings),
		Scheduler:     service.NewScheduler(subs, payments, store, gw, settings),
		Webhook:       webhook,
		Now:           settings.Now,
	}
	return &testServer{router: NewRouter(svc, secret), store: store, gateway: gw, webhook: webhook, svc: svc}
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	tok, err := IssueToken(secret, actor, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

// do sends a request as actor. A nil actor sends no token.
func (s *testServer) do(t *testing.T, actor *domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *actor))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// donate creates a pending donation owned by the donor actor.
func (s *testServer) donate(t *testing.T, amt string) string {
	t.Helper()
	rec := s.do(t, &donor, http.MethodPost, "/donations", map[string]any{
		"donor":  map[string]any{"name": "Asha Rao", "email": donor.Email, "pan": "ABCDE1234F"},
		"amount": amt,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create donation: %d %s", rec.Code, rec.Body.String())
	}
	payment := decode(t, rec)["payment"].(map[string]any)
	return payment["id"].(string)
}

// completedDonation creates a donation and captures it.
func (s *testServer) completedDonation(t *testing.T, amt string) string {
	t.Helper()
	id := s.donate(t, amt)
	if rec := s.do(t, &donor, http.MethodPost, "/payments/"+id+"/capture", nil); rec.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", rec.Code, rec.Body.String())
	}
	return id
}
