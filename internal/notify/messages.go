package notify

import (
	"fmt"
	"strings"

	"github.com/afyalink/afyalink/internal/models"
)

const triagePrefix = "AfyaLink Triage: "

// Truncate shortens s to at most max runes, ending with "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}

// TriageAdviceText prefixes advice and fits it into one SMS.
func TriageAdviceText(advice string) string {
	advice = strings.Join(strings.Fields(advice), " ")
	return Truncate(triagePrefix+advice, MaxSMSLength)
}

func slotText(s models.TimeSlot) string {
	return fmt.Sprintf("%s (%s)", s.Label(), s.Hours())
}

// BookingConfirmationText confirms a new booking, with the payment reference for mobile payments.
func BookingConfirmationText(a *models.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AfyaLink: Appointment %s confirmed.\n", a.ID)
	fmt.Fprintf(&b, "%s, %s\n", a.Facility.Label(), a.County.Label())
	fmt.Fprintf(&b, "%s %s\n", a.Date, slotText(a.Slot))
	if a.Payment.Method.IsMobile() {
		fmt.Fprintf(&b, "Paid KES %d via %s. Ref: %s", a.Payment.Amount, a.Payment.Method.Label(), a.Payment.Reference)
	} else {
		fmt.Fprintf(&b, "Payment: %s (KES %d)", a.Payment.Method.Label(), a.Payment.Amount)
	}
	return b.String()
}

// ReceiptText itemises an appointment's payment.
func ReceiptText(a *models.Appointment) string {
	var b strings.Builder
	b.WriteString("AfyaLink Receipt\n")
	fmt.Fprintf(&b, "Appointment: %s\n", a.ID)
	fmt.Fprintf(&b, "Facility: %s, %s\n", a.Facility.Label(), a.County.Label())
	fmt.Fprintf(&b, "Date: %s %s\n", a.Date, slotText(a.Slot))
	fmt.Fprintf(&b, "Amount: KES %d\n", a.Payment.Amount)
	fmt.Fprintf(&b, "Method: %s", a.Payment.Method.Label())
	if a.Payment.Reference != "" {
		fmt.Fprintf(&b, "\nRef: %s", a.Payment.Reference)
	}
	return b.String()
}

// RefundText tells the caller a cancelled mobile payment will be refunded.
func RefundText(a *models.Appointment) string {
	return fmt.Sprintf("AfyaLink: Appointment %s cancelled. A refund of KES %d to your %s will be processed within 24 hours.",
		a.ID, a.Payment.Amount, a.Payment.Method.Label())
}

// CancellationText confirms a cancellation that needs no refund.
func CancellationText(a *models.Appointment) string {
	return fmt.Sprintf("AfyaLink: Appointment %s on %s has been cancelled.", a.ID, a.Date)
}

// RescheduleText gives the appointment's new date.
func RescheduleText(a *models.Appointment) string {
	return fmt.Sprintf("AfyaLink: Appointment %s moved to %s %s at %s, %s.",
		a.ID, a.Date, slotText(a.Slot), a.Facility.Label(), a.County.Label())
}

// ReminderText reminds the caller of tomorrow's appointment.
func ReminderText(a *models.Appointment) string {
	return fmt.Sprintf("AfyaLink reminder: your appointment %s at %s, %s is tomorrow %s, %s.",
		a.ID, a.Facility.Label(), a.County.Label(), a.Date, slotText(a.Slot))
}
