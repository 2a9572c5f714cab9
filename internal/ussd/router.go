package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/payment"
	"github.com/afyalink/afyalink/internal/session"
	"github.com/afyalink/afyalink/internal/util"
)

const (
	// DefaultAITimeout bounds the triage assessment call.
	DefaultAITimeout = 8 * time.Second
	// DefaultEventTimeout bounds each appointment event publish.
	DefaultEventTimeout = 3 * time.Second

	maxAppointmentIDAttempts = 3
)

// Top-level menu tokens.
const (
	menuTriage       = "1"
	menuBooking      = "2"
	menuAppointments = "3"
	menuExit         = "99"
)

var (
	screenWelcome = Con("Welcome to AfyaLink 🏥\n1. Triage Assessment\n2. Book Clinic Visit\n3. My Appointments\n99. Exit")
	screenExit    = End("Thank you for using AfyaLink. Stay healthy!")
)

// Router maps an AfyaLink request to its next screen.
type Router struct {
	store        session.Store
	payments     *payment.Simulator
	ai           genai.Generator
	notifier     *notify.Dispatcher
	publisher    events.Publisher
	aiTimeout    time.Duration
	eventTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAITimeout bounds the triage assessment call.
func WithAITimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.aiTimeout = d
		}
	}
}

// WithPublisher publishes appointment lifecycle events.
func WithPublisher(p events.Publisher) RouterOption {
	return func(r *Router) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator overrides appointment ID generation, for tests.
func WithIDGenerator(gen func() string) RouterOption {
	return func(r *Router) { r.newID = gen }
}

// NewRouter creates a Router over store. ai answers triage assessments and
// notifier sends the resulting SMS.
func NewRouter(store session.Store, payments *payment.Simulator, ai genai.Generator, notifier *notify.Dispatcher, opts ...RouterOption) *Router {
	r := &Router{
		store:        store,
		payments:     payments,
		ai:           ai,
		notifier:     notifier,
		publisher:    events.NoopPublisher{},
		aiTimeout:    DefaultAITimeout,
		eventTimeout: DefaultEventTimeout,
		now:          time.Now,
		newID:        util.GenerateAppointmentID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle renders the screen for req. A non-nil error means the store failed in
// a way the caller cannot correct; the returned Response is then ScreenUnavailable.
func (r *Router) Handle(ctx context.Context, req Request) (Response, error) {
	if req.Path.Len() == 0 {
		return screenWelcome, nil
	}
	var (
		resp Response
		err  error
	)
	switch req.Path.At(0) {
	case menuTriage:
		resp = r.triage(ctx, req)
	case menuBooking:
		resp, err = r.booking(ctx, req)
	case menuAppointments:
		resp, err = r.appointments(ctx, req)
	case menuExit:
		if req.Path.Len() > 1 {
			return screenInvalidChoice, nil
		}
		resp = screenExit
	default:
		resp = screenInvalidChoice
	}
	if err != nil {
		slog.Error("Router.Handle: request failed", "sessionID", req.SessionID, "phone", req.Phone, "depth", req.Path.Len(), "error", err)
		return ScreenUnavailable, err
	}
	return resp, nil
}

// createAppointment stores a new appointment, regenerating the ID on collision.
func (r *Router) createAppointment(ctx context.Context, phone string, draft models.BookingDraft, pay models.PaymentInfo) (*models.Appointment, error) {
	for attempt := 0; attempt < maxAppointmentIDAttempts; attempt++ {
		a := models.NewAppointment(r.newID(), phone, draft, pay, r.now())
		err := r.store.CreateAppointment(ctx, a)
		if err == nil {
			slog.Info("Router.createAppointment: appointment booked", "id", a.ID, "phone", phone, "date", a.Date, "method", pay.Method.Label())
			return a, nil
		}
		if !errors.Is(err, session.ErrDuplicateID) {
			return nil, fmt.Errorf("failed to create appointment: %w", err)
		}
		slog.Warn("Router.createAppointment: appointment ID collision, regenerating", "id", a.ID)
	}
	return nil, fmt.Errorf("failed to create appointment after %d attempts: %w", maxAppointmentIDAttempts, session.ErrDuplicateID)
}

// publish sends an appointment event; failures are logged only.
func (r *Router) publish(ctx context.Context, t events.Type, a *models.Appointment) {
	ctx, cancel := context.WithTimeout(ctx, r.eventTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, events.NewAppointmentEvent(t, a)); err != nil {
		slog.Warn("Router.publish: event not published", "type", t, "appointmentID", a.ID, "error", err)
	}
}
