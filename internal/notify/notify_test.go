package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/twiliosms"
)

type mockEmailSender struct {
	mock.Mock
}

func (m *mockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *twiliosms.MockClient, *messaging.TwilioService) {
	t.Helper()
	client := twiliosms.NewMockClient()
	svc := messaging.NewTwilioService(client)
	t.Cleanup(func() { _ = svc.Stop() })
	return NewDispatcher(svc, opts...), client, svc
}

func mpesaAppointment() *models.Appointment {
	return models.NewAppointment("AFY-ABC123", "+254700111222",
		models.BookingDraft{Facility: models.FacilityHealthCentre, County: models.CountyNairobi, Date: "15-08-2025", Slot: models.SlotMorning},
		models.PaymentInfo{Method: models.PaymentMPesa, Amount: 550, Reference: "MPX1Y2Z3W4"},
		time.Now())
}

func TestTriageAdviceText_FitsOneSegment(t *testing.T) {
	advice := strings.Repeat("Drink plenty of fluids and rest. ", 20)
	text := TriageAdviceText(advice)
	assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxSMSLength)
	assert.True(t, strings.HasPrefix(text, "AfyaLink Triage: Drink plenty"))
	assert.True(t, strings.HasSuffix(text, "..."))

	short := TriageAdviceText("Rest  and\nhydrate.")
	assert.Equal(t, "AfyaLink Triage: Rest and hydrate.", short)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "he...", Truncate("hello world", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestBookingConfirmation(t *testing.T) {
	d, client, svc := newTestDispatcher(t, WithSenderID("AFYA"))
	a := mpesaAppointment()

	require.NoError(t, d.BookingConfirmation(context.Background(), a))

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+254700111222", msgs[0].To)
	assert.Equal(t, "AFYA", msgs[0].SenderID)
	assert.Contains(t, msgs[0].Body, "AFY-ABC123 confirmed")
	assert.Contains(t, msgs[0].Body, "Health Centre, Nairobi")
	assert.Contains(t, msgs[0].Body, "Morning (8AM-12PM)")
	assert.Contains(t, msgs[0].Body, "Paid KES 550 via M-Pesa. Ref: MPX1Y2Z3W4")

	receipt := <-svc.Receipts()
	assert.Equal(t, KindBookingConfirmation, receipt.Kind)
	assert.Equal(t, models.MessageStatusSent, receipt.Status)
}

func TestBookingConfirmation_Cash(t *testing.T) {
	a := mpesaAppointment()
	a.Payment = models.PaymentInfo{Method: models.PaymentCash, Amount: 500}
	assert.Contains(t, BookingConfirmationText(a), "Payment: Cash at facility (KES 500)")
}

func TestReceiptAndRefundTexts(t *testing.T) {
	a := mpesaAppointment()
	receipt := ReceiptText(a)
	assert.Contains(t, receipt, "Amount: KES 550")
	assert.Contains(t, receipt, "Ref: MPX1Y2Z3W4")

	assert.Contains(t, RefundText(a), "refund of KES 550 to your M-Pesa")
	assert.Contains(t, ReminderText(a), "is tomorrow 15-08-2025")
	assert.Contains(t, RescheduleText(a), "moved to 15-08-2025")
	assert.Contains(t, CancellationText(a), "has been cancelled")
}

func TestSendSMS_FailureIsReturned(t *testing.T) {
	d, client, svc := newTestDispatcher(t)
	client.Err = errors.New("gateway down")

	err := d.Refund(context.Background(), mpesaAppointment())
	assert.ErrorContains(t, err, "gateway down")

	receipt := <-svc.Receipts()
	assert.Equal(t, KindRefund, receipt.Kind)
	assert.Equal(t, models.MessageStatusFailed, receipt.Status)
}

func TestCall(t *testing.T) {
	d, client, _ := newTestDispatcher(t)
	require.NoError(t, d.Call(context.Background(), KindAssistant, "0700111222", "Hello there"))

	calls := client.PlacedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "+254700111222", calls[0].To)
	assert.Equal(t, "Hello there", calls[0].Message)
}

func TestEmail(t *testing.T) {
	sender := &mockEmailSender{}
	sender.On("SendEmail", "reports@example.org", "Subject", "Body").Return(nil).Once()
	d, _, _ := newTestDispatcher(t, WithEmailSender(sender))

	require.NoError(t, d.Email(context.Background(), KindReports, "reports@example.org", "Subject", "Body"))
	sender.AssertExpectations(t)

	assert.Error(t, d.Email(context.Background(), KindReports, "", "Subject", "Body"))
}

func TestEmail_NotConfigured(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	err := d.Email(context.Background(), KindReports, "reports@example.org", "s", "b")
	assert.ErrorIs(t, err, ErrEmailNotConfigured)
}

func TestWithTimeoutIgnoresNonPositive(t *testing.T) {
	d, _, _ := newTestDispatcher(t, WithTimeout(0))
	assert.Equal(t, DefaultTimeout, d.timeout)
}
