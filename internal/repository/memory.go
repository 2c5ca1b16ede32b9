package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"donation-service/internal/domain"
)

// MemoryStore keeps everything in process. It backs the service and HTTP
// tests and follows the same contracts as the Postgres store.
type MemoryStore struct {
	mu            sync.Mutex
	payments      map[string]domain.PaymentRecord
	subscriptions map[string]domain.Subscription
	charges       map[string]string
	certificates  map[string]domain.TaxCertificate
	sequences     map[string]int64
	emailLogs     []domain.EmailLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:      make(map[string]domain.PaymentRecord),
		subscriptions: make(map[string]domain.Subscription),
		charges:       make(map[string]string),
		certificates:  make(map[string]domain.TaxCertificate),
		sequences:     make(map[string]int64),
	}
}

func (m *MemoryStore) NextSequence(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[name]++
	return m.sequences[name], nil
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *domain.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; ok {
		return fmt.Errorf("%w: payment %s already exists", domain.ErrConflict, p.ID)
	}
	for _, existing := range m.payments {
		if existing.Reference == p.Reference {
			return fmt.Errorf("%w: reference %s already used", domain.ErrConflict, p.Reference)
		}
	}
	p.Version = 1
	m.payments[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	return &p, nil
}

func (m *MemoryStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	return m.findPayment(func(p *domain.PaymentRecord) bool { return p.OrderID == orderID }, "order "+orderID)
}

func (m *MemoryStore) GetPaymentByReference(ctx context.Context, reference string) (*domain.PaymentRecord, error) {
	return m.findPayment(func(p *domain.PaymentRecord) bool { return p.Reference == reference }, "reference "+reference)
}

func (m *MemoryStore) findPayment(match func(*domain.PaymentRecord) bool, what string) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if match(&p) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: payment with %s", domain.ErrNotFound, what)
}

// ModifyPayment runs fn on the current record while holding the store lock,
// so concurrent modifications of the same payment are serialized.
func (m *MemoryStore) ModifyPayment(ctx context.Context, id string, fn func(*domain.PaymentRecord) error) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
	}
	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Version = current.Version + 1
	m.payments[id] = working
	return &working, nil
}

func (m *MemoryStore) FindPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentRecord
	for _, p := range m.payments {
		if filter.Matches(&p) {
			out = append(out, p)
		}
	}
	domain.SortPayments(out)
	return out, nil
}

func (m *MemoryStore) CreateSubscription(ctx context.Context, s *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[s.ID]; ok {
		return fmt.Errorf("%w: subscription %s already exists", domain.ErrConflict, s.ID)
	}
	s.Version = 1
	m.subscriptions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	return &s, nil
}

func (m *MemoryStore) ModifySubscription(ctx context.Context, id string, fn func(*domain.Subscription) error) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modifySubscriptionLocked(id, fn)
}

func (m *MemoryStore) modifySubscriptionLocked(id string, fn func(*domain.Subscription) error) (*domain.Subscription, error) {
	current, ok := m.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Version = current.Version + 1
	m.subscriptions[id] = working
	return &working, nil
}

// RecordCharge books paymentID against the subscription at most once. The
// second call for the same payment returns the current subscription and false.
func (m *MemoryStore) RecordCharge(ctx context.Context, subscriptionID, paymentID string, fn func(*domain.Subscription) error) (*domain.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.charges[paymentID]; seen {
		s, ok := m.subscriptions[subscriptionID]
		if !ok {
			return nil, false, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, subscriptionID)
		}
		return &s, false, nil
	}
	s, err := m.modifySubscriptionLocked(subscriptionID, fn)
	if err != nil {
		return nil, false, err
	}
	m.charges[paymentID] = subscriptionID
	return s, true, nil
}

func (m *MemoryStore) FindSubscriptions(ctx context.Context, filter domain.SubscriptionFilter) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subscriptions {
		if filter.Matches(&s) {
			out = append(out, s)
		}
	}
	domain.SortSubscriptions(out)
	return out, nil
}

func (m *MemoryStore) FindDueSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subscriptions {
		if s.IsDue(now) {
			out = append(out, s)
		}
	}
	domain.SortSubscriptions(out)
	return out, nil
}

func (m *MemoryStore) CreateCertificate(ctx context.Context, c *domain.TaxCertificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.certificates {
		if existing.CertificateNumber == c.CertificateNumber {
			return fmt.Errorf("%w: certificate number %s already issued", domain.ErrConflict, c.CertificateNumber)
		}
		if c.SupersedesID == "" && existing.SupersedesID == "" && existing.PaymentID == c.PaymentID {
			return fmt.Errorf("%w: payment %s already has a certificate", domain.ErrConflict, c.PaymentID)
		}
	}
	m.certificates[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetCertificateByNumber(ctx context.Context, number string) (*domain.TaxCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certificates {
		if c.CertificateNumber == number {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: certificate %s", domain.ErrNotFound, number)
}

// LatestCertificateForPayment returns the most recently issued certificate
// for the payment.
func (m *MemoryStore) LatestCertificateForPayment(ctx context.Context, paymentID string) (*domain.TaxCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.TaxCertificate
	for _, c := range m.certificates {
		if c.PaymentID != paymentID {
			continue
		}
		if latest == nil || c.IssuedAt.After(latest.IssuedAt) || (c.IssuedAt.Equal(latest.IssuedAt) && c.Sequence > latest.Sequence) {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: certificate for payment %s", domain.ErrNotFound, paymentID)
	}
	return latest, nil
}

func (m *MemoryStore) SaveEmailLog(ctx context.Context, l domain.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailLogs = append(m.emailLogs, l)
	return nil
}

// EmailLogs returns the delivery log for a payment in insertion order.
func (m *MemoryStore) EmailLogs(paymentID string) []domain.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailLog
	for _, l := range m.emailLogs {
		if l.PaymentID == paymentID {
			out = append(out, l)
		}
	}
	return out
}
