package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/twiliosms"
	"github.com/afyalink/afyalink/internal/util"
)

// twilioClient is the part of twiliosms.Client the service drives; twiliosms.MockClient satisfies it too.
type twilioClient interface {
	twiliosms.Sender
	twiliosms.Caller
}

// TwilioServiceOption configures a TwilioService.
type TwilioServiceOption func(*TwilioService)

// WithDefaultSenderID sets the sender ID used when a send does not name one.
func WithDefaultSenderID(id string) TwilioServiceOption {
	return func(s *TwilioService) { s.defaultSenderID = id }
}

// WithDryRun logs messages instead of handing them to Twilio.
func WithDryRun(enabled bool) TwilioServiceOption {
	return func(s *TwilioService) { s.dryRun = enabled }
}

// TwilioService implements Service on top of a Twilio client.
type TwilioService struct {
	client          twilioClient
	defaultSenderID string
	dryRun          bool
	receipts        chan models.Receipt
	mu              sync.RWMutex
	stopped         bool
}

// NewTwilioService creates a TwilioService wrapping client, which may be the
// live Twilio client or twiliosms.MockClient.
func NewTwilioService(client twilioClient, opts ...TwilioServiceOption) *TwilioService {
	s := &TwilioService{
		client:   client,
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAndCanonicalizeRecipient returns the recipient in E.164 form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendSMS validates the recipient, sends body and emits a receipt for the attempt.
func (s *TwilioService) SendSMS(ctx context.Context, to, body, senderID string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Warn("TwilioService.SendSMS: recipient validation failed", "to", to, "error", err)
		return err
	}
	if senderID == "" {
		senderID = s.defaultSenderID
	}

	if s.dryRun {
		slog.Info("TwilioService.SendSMS: dry run, not sending", "to", canonicalTo, "senderID", senderID, "body", body)
		s.safeEmitReceipt(newReceipt(ctx, canonicalTo, models.ChannelSMS, models.MessageStatusSkipped, nil))
		return nil
	}

	err = s.client.SendSMS(ctx, canonicalTo, body, senderID)
	s.safeEmitReceipt(newReceipt(ctx, canonicalTo, models.ChannelSMS, statusFor(err), err))
	if err != nil {
		return fmt.Errorf("sms to %s failed: %w", canonicalTo, err)
	}
	return nil
}

// PlaceCall validates the recipient, starts a text-to-speech call and emits a receipt.
func (s *TwilioService) PlaceCall(ctx context.Context, to, message string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Warn("TwilioService.PlaceCall: recipient validation failed", "to", to, "error", err)
		return err
	}

	if s.dryRun {
		slog.Info("TwilioService.PlaceCall: dry run, not calling", "to", canonicalTo, "message", message)
		s.safeEmitReceipt(newReceipt(ctx, canonicalTo, models.ChannelVoice, models.MessageStatusSkipped, nil))
		return nil
	}

	err = s.client.PlaceCall(ctx, canonicalTo, message)
	s.safeEmitReceipt(newReceipt(ctx, canonicalTo, models.ChannelVoice, statusFor(err), err))
	if err != nil {
		return fmt.Errorf("call to %s failed: %w", canonicalTo, err)
	}
	return nil
}

// Receipts returns the channel of delivery attempt receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Stop closes the receipt channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receipts)
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// safeEmitReceipt holds the read lock across the send so Stop cannot close the
// channel underneath it.
func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService.safeEmitReceipt: receipt dropped, channel full", "to", receipt.To)
	}
}

func newReceipt(ctx context.Context, to string, channel models.Channel, status models.MessageStatus, err error) models.Receipt {
	r := models.Receipt{
		ID:      util.GenerateRandomID("rcpt_", 16),
		To:      to,
		Channel: channel,
		Kind:    KindFrom(ctx),
		Status:  status,
		Time:    time.Now().Unix(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func statusFor(err error) models.MessageStatus {
	if err != nil {
		return models.MessageStatusFailed
	}
	return models.MessageStatusSent
}
