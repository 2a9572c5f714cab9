package models

import "time"

// PaymentStatus is the lifecycle state of a PendingPayment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// AppointmentStatus is the lifecycle state of an Appointment.
type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// BookingDraft holds the visit details collected before payment.
type BookingDraft struct {
	Facility FacilityType `json:"facility"`
	County   County       `json:"county"`
	Date     string       `json:"date"` // DD-MM-YYYY
	Slot     TimeSlot     `json:"slot"`
}

// PendingPayment is a mobile payment awaiting the caller's confirmation.
// It is removed from the store once completed or cancelled.
type PendingPayment struct {
	Reference         string        `json:"reference"`
	SessionID         string        `json:"session_id,omitempty"`
	Phone             string        `json:"phone"`
	Amount            int           `json:"amount"` // KES
	Method            PaymentMethod `json:"method"`
	Status            PaymentStatus `json:"status"`
	Draft             BookingDraft  `json:"draft"`
	CheckoutRequestID string        `json:"checkout_request_id"`
	CreatedAt         time.Time     `json:"created_at"`
}

// PaymentInfo summarizes how an appointment was paid for.
type PaymentInfo struct {
	Method    PaymentMethod `json:"method"`
	Amount    int           `json:"amount"` // KES
	Reference string        `json:"reference,omitempty"`
}

// Appointment is a booked clinic visit.
type Appointment struct {
	ID        string            `json:"id"`
	Phone     string            `json:"phone"`
	Facility  FacilityType      `json:"facility"`
	County    County            `json:"county"`
	Date      string            `json:"date"` // DD-MM-YYYY
	Slot      TimeSlot          `json:"slot"`
	Payment   PaymentInfo       `json:"payment"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Refundable reports whether cancelling the appointment owes the caller a
// mobile money refund.
func (a *Appointment) Refundable() bool {
	return a.Payment.Method.IsMobile() && a.Payment.Amount > 0
}

// NewAppointment builds a booked appointment from a draft and its payment.
func NewAppointment(id, phone string, draft BookingDraft, payment PaymentInfo, now time.Time) *Appointment {
	return &Appointment{
		ID:        id,
		Phone:     phone,
		Facility:  draft.Facility,
		County:    draft.County,
		Date:      draft.Date,
		Slot:      draft.Slot,
		Payment:   payment,
		Status:    AppointmentStatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
