// Package events publishes appointment lifecycle events for downstream systems
// (clinic dashboards, analytics) over Kafka.
package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afyalink/afyalink/internal/models"
)

// Type names an appointment lifecycle event.
type Type string

const (
	AppointmentBooked      Type = "appointment.booked"
	AppointmentCancelled   Type = "appointment.cancelled"
	AppointmentRescheduled Type = "appointment.rescheduled"
)

// AppointmentEvent is the JSON payload written for every lifecycle change.
type AppointmentEvent struct {
	ID            string                   `json:"id"`
	Type          Type                     `json:"type"`
	AppointmentID string                   `json:"appointment_id"`
	Phone         string                   `json:"phone"`
	Facility      string                   `json:"facility"`
	County        string                   `json:"county"`
	Date          string                   `json:"date"`
	Slot          string                   `json:"slot"`
	PaymentMethod string                   `json:"payment_method"`
	Amount        int                      `json:"amount"`
	Status        models.AppointmentStatus `json:"status"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// NewAppointmentEvent snapshots a for publishing.
func NewAppointmentEvent(t Type, a *models.Appointment) AppointmentEvent {
	return AppointmentEvent{
		ID:            uuid.NewString(),
		Type:          t,
		AppointmentID: a.ID,
		Phone:         a.Phone,
		Facility:      a.Facility.Label(),
		County:        a.County.Label(),
		Date:          a.Date,
		Slot:          a.Slot.Label(),
		PaymentMethod: a.Payment.Method.Label(),
		Amount:        a.Payment.Amount,
		Status:        a.Status,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers appointment events.
type Publisher interface {
	Publish(ctx context.Context, e AppointmentEvent) error
	Close() error
}

// NoopPublisher drops events; used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, e AppointmentEvent) error {
	slog.Debug("NoopPublisher.Publish: event dropped", "type", e.Type, "appointmentID", e.AppointmentID)
	return nil
}

func (NoopPublisher) Close() error { return nil }

// SplitBrokers parses a comma-separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
