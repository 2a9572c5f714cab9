package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/session"
	"github.com/afyalink/afyalink/internal/util"
)

const maxReferenceAttempts = 3

// Pusher sends a mobile money payment prompt to the caller's handset and returns
// the checkout request ID the gateway assigned.
type Pusher interface {
	Push(ctx context.Context, phone string, amount int, reference string) (string, error)
}

// MockPusher accepts every push without contacting a gateway.
type MockPusher struct{}

// Push returns a fresh checkout request ID.
func (MockPusher) Push(_ context.Context, phone string, amount int, reference string) (string, error) {
	id := "ws_CO_" + uuid.NewString()
	slog.Info("MockPusher.Push: simulated STK push", "phone", phone, "amount", amount, "reference", reference, "checkoutRequestID", id)
	return id, nil
}

// Simulator creates pending payments for the mobile money branch of the booking flow.
type Simulator struct {
	store  session.Store
	pusher Pusher
	now    func() time.Time
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithPusher replaces the default MockPusher.
func WithPusher(p Pusher) SimulatorOption {
	return func(s *Simulator) { s.pusher = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator creates a Simulator writing to store.
func NewSimulator(store session.Store, opts ...SimulatorOption) *Simulator {
	s := &Simulator{store: store, pusher: MockPusher{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate records a pending mobile payment for draft and pushes the payment
// prompt to phone. A repeated request for a session that already has a pending
// payment returns that payment without pushing again.
func (s *Simulator) Initiate(ctx context.Context, sessionID, phone string, draft models.BookingDraft) (*models.PendingPayment, error) {
	if existing, ok, err := s.existing(ctx, sessionID, draft); err != nil || ok {
		return existing, err
	}

	p := &models.PendingPayment{
		SessionID: sessionID,
		Phone:     phone,
		Amount:    Total(draft.Facility, models.PaymentMPesa),
		Method:    models.PaymentMPesa,
		Status:    models.PaymentStatusPending,
		Draft:     draft,
		CreatedAt: s.now(),
	}

	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		p.Reference = util.GeneratePaymentReference()
		p.CheckoutRequestID, err = s.pusher.Push(ctx, phone, p.Amount, p.Reference)
		if err != nil {
			return nil, fmt.Errorf("payment push failed: %w", err)
		}
		err = s.store.CreatePendingPayment(ctx, p)
		if !errors.Is(err, session.ErrDuplicateID) {
			break
		}
		slog.Warn("Simulator.Initiate: payment reference collision, regenerating", "reference", p.Reference)
	}
	if errors.Is(err, session.ErrPendingExists) {
		// A concurrent retry of the same request stored its payment first.
		if existing, ok, findErr := s.existing(ctx, sessionID, draft); findErr != nil || ok {
			return existing, findErr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record pending payment: %w", err)
	}
	slog.Debug("Simulator.Initiate: pending payment created", "reference", p.Reference, "phone", phone, "amount", p.Amount)
	return p, nil
}

// existing returns the session's pending payment for draft, if there is one.
func (s *Simulator) existing(ctx context.Context, sessionID string, draft models.BookingDraft) (*models.PendingPayment, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}
	p, err := s.store.FindPendingPayment(ctx, session.PendingQuery{SessionID: sessionID, Draft: draft})
	if errors.Is(err, session.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up pending payment: %w", err)
	}
	slog.Debug("Simulator.Initiate: reusing pending payment", "reference", p.Reference, "sessionID", sessionID)
	return p, true, nil
}
