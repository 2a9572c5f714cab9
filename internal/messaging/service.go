// Package messaging delivers outbound notifications (SMS, voice calls and email)
// and reports every delivery attempt as a models.Receipt.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/afyalink/afyalink/internal/models"
)

const (
	// DefaultChannelBufferSize defines the default buffer size for the receipt channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long a receipt emit may block before it is dropped.
	DefaultChannelTimeout = 1 * time.Second
)

var (
	// ErrServiceStopped is returned by sends after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrInvalidRecipient is returned when a phone number cannot be canonicalized.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Service sends SMS and voice calls to callers.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the recipient in E.164 form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendSMS sends body to the recipient. An empty senderID uses the service default.
	SendSMS(ctx context.Context, to, body, senderID string) error
	// PlaceCall calls the recipient and speaks message.
	PlaceCall(ctx context.Context, to, message string) error
	// Receipts returns a channel of delivery attempt receipts.
	Receipts() <-chan models.Receipt
	// Stop closes the receipt channel; later sends fail with ErrServiceStopped.
	Stop() error
}

// EmailSender sends plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type kindKey struct{}

// WithKind tags ctx so receipts for sends made with it carry kind,
// e.g. "booking_confirmation".
func WithKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, kindKey{}, kind)
}

// KindFrom returns the kind set by WithKind, or "".
func KindFrom(ctx context.Context) string {
	kind, _ := ctx.Value(kindKey{}).(string)
	return kind
}
