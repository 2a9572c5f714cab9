// Package notify composes the caller-facing SMS, voice and email notifications
// and hands them to the messaging layer. Failures are logged and returned but
// never retried; callers decide whether a failed notification changes the screen.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/models"
)

const (
	// DefaultTimeout bounds each outbound send.
	DefaultTimeout = 10 * time.Second
	// DefaultSenderID is used when no sender ID is configured.
	DefaultSenderID = "AfyaLink"
	// MaxSMSLength is the single-segment SMS limit applied to AI generated advice.
	MaxSMSLength = 160
)

// Receipt kinds recorded against each send.
const (
	KindTriageAdvice        = "triage_advice"
	KindBookingConfirmation = "booking_confirmation"
	KindReceipt             = "receipt"
	KindRefund              = "refund"
	KindCancellation        = "cancellation"
	KindReschedule          = "reschedule"
	KindReminder            = "reminder"
	KindAssistant           = "assistant"
	KindTutor               = "tutor"
	KindChatbotInfo         = "chatbot_info"
	KindSponsorship         = "sponsorship"
	KindReports             = "reports"
	KindCareer              = "career"
)

// ErrEmailNotConfigured is returned by Email when no EmailSender was supplied.
var ErrEmailNotConfigured = errors.New("email sender not configured")

// Dispatcher sends notifications through a messaging.Service and an optional
// messaging.EmailSender.
type Dispatcher struct {
	sms      messaging.Service
	email    messaging.EmailSender
	senderID string
	timeout  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSenderID sets the SMS sender ID for AfyaLink messages.
func WithSenderID(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.senderID = id
		}
	}
}

// WithTimeout bounds every send.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithEmailSender enables Email.
func WithEmailSender(sender messaging.EmailSender) Option {
	return func(d *Dispatcher) { d.email = sender }
}

// NewDispatcher creates a Dispatcher delivering SMS and calls through sms.
func NewDispatcher(sms messaging.Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{sms: sms, senderID: DefaultSenderID, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TriageAdvice sends the AI assessment, cut to a single SMS segment.
func (d *Dispatcher) TriageAdvice(ctx context.Context, phone, advice string) error {
	return d.SendSMS(ctx, KindTriageAdvice, phone, TriageAdviceText(advice), "")
}

// BookingConfirmation tells the caller their appointment is booked.
func (d *Dispatcher) BookingConfirmation(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindBookingConfirmation, a.Phone, BookingConfirmationText(a), "")
}

// Receipt sends the appointment and payment details.
func (d *Dispatcher) Receipt(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindReceipt, a.Phone, ReceiptText(a), "")
}

// Refund confirms a cancellation that owes the caller a mobile money refund.
func (d *Dispatcher) Refund(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindRefund, a.Phone, RefundText(a), "")
}

// Cancellation confirms a cancellation with nothing to refund.
func (d *Dispatcher) Cancellation(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindCancellation, a.Phone, CancellationText(a), "")
}

// Rescheduled confirms an appointment's new date.
func (d *Dispatcher) Rescheduled(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindReschedule, a.Phone, RescheduleText(a), "")
}

// Reminder reminds the caller of an appointment tomorrow.
func (d *Dispatcher) Reminder(ctx context.Context, a *models.Appointment) error {
	return d.SendSMS(ctx, KindReminder, a.Phone, ReminderText(a), "")
}

// SendSMS sends body to phone under a bounded timeout and tags the receipt with
// kind. An empty senderID uses the dispatcher's sender ID.
func (d *Dispatcher) SendSMS(ctx context.Context, kind, phone, body, senderID string) error {
	if senderID == "" {
		senderID = d.senderID
	}
	ctx, cancel := context.WithTimeout(messaging.WithKind(ctx, kind), d.timeout)
	defer cancel()

	if err := d.sms.SendSMS(ctx, phone, body, senderID); err != nil {
		slog.Error("Dispatcher.SendSMS: send failed", "kind", kind, "phone", phone, "error", err)
		return err
	}
	slog.Debug("Dispatcher.SendSMS: sent", "kind", kind, "phone", phone)
	return nil
}

// Call places a text-to-speech voice call to phone.
func (d *Dispatcher) Call(ctx context.Context, kind, phone, message string) error {
	ctx, cancel := context.WithTimeout(messaging.WithKind(ctx, kind), d.timeout)
	defer cancel()

	if err := d.sms.PlaceCall(ctx, phone, message); err != nil {
		slog.Error("Dispatcher.Call: call failed", "kind", kind, "phone", phone, "error", err)
		return err
	}
	slog.Debug("Dispatcher.Call: call placed", "kind", kind, "phone", phone)
	return nil
}

// Email sends a plain-text email.
func (d *Dispatcher) Email(ctx context.Context, kind, to, subject, body string) error {
	if d.email == nil {
		return ErrEmailNotConfigured
	}
	if to == "" {
		return fmt.Errorf("email recipient is empty")
	}
	ctx, cancel := context.WithTimeout(messaging.WithKind(ctx, kind), d.timeout)
	defer cancel()

	if err := d.email.SendEmail(ctx, to, subject, body); err != nil {
		slog.Error("Dispatcher.Email: send failed", "kind", kind, "to", to, "error", err)
		return err
	}
	slog.Debug("Dispatcher.Email: sent", "kind", kind, "to", to)
	return nil
}
