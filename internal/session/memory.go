package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afyalink/afyalink/internal/models"
)

// InMemoryStore is a process-local Store guarded by a single mutex.
// Records live until the process exits.
type InMemoryStore struct {
	mu           sync.Mutex
	pending      map[string]*models.PendingPayment
	pendingOrder []string
	appointments map[string]*models.Appointment
	apptOrder    []string
	now          func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pending:      make(map[string]*models.PendingPayment),
		appointments: make(map[string]*models.Appointment),
		now:          time.Now,
	}
}

func (s *InMemoryStore) CreatePendingPayment(_ context.Context, p *models.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[p.Reference]; exists {
		return fmt.Errorf("%w: payment %s", ErrDuplicateID, p.Reference)
	}
	if p.SessionID != "" {
		for _, other := range s.pending {
			if other.SessionID == p.SessionID {
				return fmt.Errorf("%w: session %s holds %s", ErrPendingExists, p.SessionID, other.Reference)
			}
		}
	}
	cp := *p
	s.pending[p.Reference] = &cp
	s.pendingOrder = append(s.pendingOrder, p.Reference)
	slog.Debug("InMemoryStore.CreatePendingPayment: stored", "reference", p.Reference, "phone", p.Phone, "amount", p.Amount)
	return nil
}

func (s *InMemoryStore) FindPendingPayment(_ context.Context, q PendingQuery) (*models.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexPending(q)
	if idx < 0 {
		return nil, ErrNotFound
	}
	cp := *s.pending[s.pendingOrder[idx]]
	return &cp, nil
}

func (s *InMemoryStore) ClaimPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error) {
	return s.takePendingPayment(ctx, q, EventComplete)
}

func (s *InMemoryStore) CancelPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error) {
	return s.takePendingPayment(ctx, q, EventCancel)
}

// indexPending returns the position in pendingOrder of the oldest payment q
// matches, or -1. Callers hold s.mu.
func (s *InMemoryStore) indexPending(q PendingQuery) int {
	for i, ref := range s.pendingOrder {
		if q.matches(s.pending[ref]) {
			return i
		}
	}
	return -1
}

// takePendingPayment finds the payment q selects, applies event and removes
// it, all under one lock.
func (s *InMemoryStore) takePendingPayment(ctx context.Context, q PendingQuery, event string) (*models.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexPending(q)
	if idx < 0 {
		return nil, ErrNotFound
	}

	ref := s.pendingOrder[idx]
	p := *s.pending[ref]
	if err := advancePayment(ctx, &p, event); err != nil {
		return nil, err
	}
	delete(s.pending, ref)
	s.pendingOrder = append(s.pendingOrder[:idx], s.pendingOrder[idx+1:]...)
	slog.Debug("InMemoryStore.takePendingPayment: consumed", "reference", ref, "event", event)
	return &p, nil
}

func (s *InMemoryStore) CreateAppointment(_ context.Context, a *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appointments[a.ID]; exists {
		return fmt.Errorf("%w: appointment %s", ErrDuplicateID, a.ID)
	}
	cp := *a
	s.appointments[a.ID] = &cp
	s.apptOrder = append(s.apptOrder, a.ID)
	slog.Debug("InMemoryStore.CreateAppointment: stored", "id", a.ID, "phone", a.Phone)
	return nil
}

func (s *InMemoryStore) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemoryStore) ListAppointments(_ context.Context, phone string) ([]*models.Appointment, error) {
	return s.filterBooked(func(a *models.Appointment) bool { return a.Phone == phone }), nil
}

func (s *InMemoryStore) AppointmentsOn(_ context.Context, date string) ([]*models.Appointment, error) {
	return s.filterBooked(func(a *models.Appointment) bool { return a.Date == date }), nil
}

func (s *InMemoryStore) filterBooked(match func(*models.Appointment) bool) []*models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Appointment
	for _, id := range s.apptOrder {
		a := s.appointments[id]
		if a.Status == models.AppointmentStatusBooked && match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (s *InMemoryStore) CancelAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.updateAppointment(ctx, id, EventCancel, nil)
}

func (s *InMemoryStore) RescheduleAppointment(ctx context.Context, id, date string) (*models.Appointment, error) {
	return s.updateAppointment(ctx, id, EventReschedule, func(a *models.Appointment) { a.Date = date })
}

func (s *InMemoryStore) updateAppointment(ctx context.Context, id, event string, mutate func(*models.Appointment)) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := *stored
	if err := advanceAppointment(ctx, &next, event, s.now()); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&next)
	}
	*stored = next
	slog.Debug("InMemoryStore.updateAppointment: applied", "id", id, "event", event, "status", next.Status)
	return &next, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
