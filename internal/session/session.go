// Package session holds the records that carry a USSD caller across the stateless
// requests of one dial: mobile payments awaiting confirmation and booked appointments.
//
// Every mutation is a compare-and-swap against the stored record so concurrent
// requests for the same caller cannot both claim a payment or cancel twice.
package session

import (
	"context"
	"errors"

	"github.com/afyalink/afyalink/internal/models"
)

var (
	// ErrNotFound is returned when no matching record exists.
	ErrNotFound = errors.New("session: record not found")
	// ErrDuplicateID is returned when a record with the same identifier already exists.
	ErrDuplicateID = errors.New("session: duplicate identifier")
	// ErrInvalidTransition is returned when a record's status does not allow the requested change.
	ErrInvalidTransition = errors.New("session: invalid status transition")
	// ErrPendingExists is returned when a session already has a pending payment.
	ErrPendingExists = errors.New("session: pending payment already exists for session")
)

// Store is the keyed record store injected into the USSD router.
type Store interface {
	// CreatePendingPayment stores a new pending payment. Fails with ErrDuplicateID
	// if the reference is already in use, or ErrPendingExists if the payment's
	// session already has one.
	CreatePendingPayment(ctx context.Context, p *models.PendingPayment) error
	// FindPendingPayment returns the pending payment q selects without consuming it.
	FindPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error)
	// ClaimPendingPayment removes and returns the pending payment q selects,
	// marked completed. Returns ErrNotFound when nothing matches.
	ClaimPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error)
	// CancelPendingPayment removes and returns the pending payment q selects,
	// marked cancelled.
	CancelPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error)

	// CreateAppointment stores a new appointment. Fails with ErrDuplicateID if the
	// ID is already in use; the existing record is never overwritten.
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	// GetAppointment returns the appointment with the given ID in any status.
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	// ListAppointments returns the caller's booked appointments in booking order.
	ListAppointments(ctx context.Context, phone string) ([]*models.Appointment, error)
	// AppointmentsOn returns every booked appointment dated date (DD-MM-YYYY).
	AppointmentsOn(ctx context.Context, date string) ([]*models.Appointment, error)
	// CancelAppointment moves a booked appointment to cancelled.
	CancelAppointment(ctx context.Context, id string) (*models.Appointment, error)
	// RescheduleAppointment moves a booked appointment to a new date.
	RescheduleAppointment(ctx context.Context, id, date string) (*models.Appointment, error)

	Close() error
}

// PendingQuery selects the pending payment a caller is acting on. A non-empty
// SessionID matches only that session's payment; Phone is consulted only when
// the gateway sent no session ID, oldest payment first. In both cases the
// stored draft must equal Draft.
type PendingQuery struct {
	SessionID string
	Phone     string
	Draft     models.BookingDraft
}

func (q PendingQuery) matches(p *models.PendingPayment) bool {
	if p.Draft != q.Draft {
		return false
	}
	if q.SessionID != "" {
		return p.SessionID == q.SessionID
	}
	return q.Phone != "" && p.Phone == q.Phone
}
