package handler

import (
	"context"
	"errors"
	"testing"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
)

type fakeParser struct {
	ev  *gateway.Event
	err error
}

func (p fakeParser) ParseNotification(body []byte) (*gateway.Event, error) {
	return p.ev, p.err
}

type fakePayments struct {
	err    error
	events []gateway.Event
}

func (s *fakePayments) HandleGatewayEvent(ctx context.Context, ev gateway.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestHandleMessage(t *testing.T) {
	captured := &gateway.Event{OrderID: "ref-1", Status: gateway.CaptureCaptured}
	boom := errors.New("database unavailable")

	tests := []struct {
		name       string
		parser     fakeParser
		serviceErr error
		wantErr    error
		wantEvents int
	}{
		{name: "Given valid notification When handling Then event is applied", parser: fakeParser{ev: captured}, wantEvents: 1},
		{name: "Given bad signature When handling Then dropped", parser: fakeParser{err: gateway.ErrInvalidSignature}},
		{name: "Given malformed body When handling Then dropped", parser: fakeParser{err: domain.ErrValidation}},
		{name: "Given unknown order When handling Then dropped", parser: fakeParser{ev: captured}, serviceErr: domain.ErrNotFound, wantEvents: 1},
		{name: "Given storage failure When handling Then error returned", parser: fakeParser{ev: captured}, serviceErr: boom, wantErr: boom, wantEvents: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &fakePayments{err: tt.serviceErr}
			h := NewGatewayEventHandler(tt.parser, payments)

			err := h.HandleMessage(context.Background(), []byte(`{}`))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(payments.events) != tt.wantEvents {
				t.Errorf("events = %d, want %d", len(payments.events), tt.wantEvents)
			}
		})
	}
}
