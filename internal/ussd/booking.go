package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/payment"
	"github.com/afyalink/afyalink/internal/session"
)

var (
	screenDatePrompt         = Con("Enter preferred date (DD-MM-YYYY):")
	screenInvalidMethod      = End("Invalid payment method. Please try again.")
	screenBookingCancelled   = End("Booking cancelled.")
	screenVerificationFailed = End("Payment verification failed. Please dial again to restart your booking.")
	screenPaymentUnavailable = End("Mobile payment is unavailable right now. Please try again later or choose another payment method.")
)

func facilityMenu() Response {
	var b strings.Builder
	b.WriteString("Select facility type:")
	for _, f := range models.FacilityTypes() {
		fmt.Fprintf(&b, "\n%d. %s", f, f.Label())
	}
	return Con(b.String())
}

func countyMenu() Response {
	var b strings.Builder
	b.WriteString("Select county:")
	for _, c := range models.Counties() {
		fmt.Fprintf(&b, "\n%d. %s", c, c.Label())
	}
	return Con(b.String())
}

func slotMenu() Response {
	var b strings.Builder
	b.WriteString("Select time slot:")
	for _, s := range models.TimeSlots() {
		fmt.Fprintf(&b, "\n%d. %s (%s)", s, s.Label(), s.Hours())
	}
	return Con(b.String())
}

func paymentMenu(f models.FacilityType) Response {
	var b strings.Builder
	fmt.Fprintf(&b, "Select payment method:\nConsultation fee: KES %d", payment.BasePrice(f))
	for _, m := range models.PaymentMethods() {
		fmt.Fprintf(&b, "\n%d. %s (KES %d)", m, m.Label(), payment.Total(f, m))
	}
	return Con(b.String())
}

// parseDraft validates the booking answers present in path (tokens 1..5).
func parseDraft(path StepPath) (models.BookingDraft, models.PaymentMethod, *Response) {
	var (
		d   models.BookingDraft
		m   models.PaymentMethod
		err error
	)
	if path.Len() > 1 {
		if d.Facility, err = models.ParseFacilityType(path.At(1)); err != nil {
			return d, m, &screenInvalidChoice
		}
	}
	if path.Len() > 2 {
		if d.County, err = models.ParseCounty(path.At(2)); err != nil {
			return d, m, &screenInvalidChoice
		}
	}
	if path.Len() > 3 {
		if d.Date, err = ValidateDate(path.At(3)); err != nil {
			return d, m, &screenInvalidDate
		}
	}
	if path.Len() > 4 {
		if d.Slot, err = models.ParseTimeSlot(path.At(4)); err != nil {
			return d, m, &screenInvalidChoice
		}
	}
	if path.Len() > 5 {
		if m, err = models.ParsePaymentMethod(path.At(5)); err != nil {
			return d, m, &screenInvalidMethod
		}
	}
	return d, m, nil
}

func (r *Router) booking(ctx context.Context, req Request) (Response, error) {
	path := req.Path
	if path.Len() > 7 {
		return screenInvalidChoice, nil
	}
	draft, method, bad := parseDraft(path)
	if bad != nil {
		return *bad, nil
	}

	switch path.Len() {
	case 1:
		return facilityMenu(), nil
	case 2:
		return countyMenu(), nil
	case 3:
		return screenDatePrompt, nil
	case 4:
		return slotMenu(), nil
	case 5:
		return paymentMenu(draft.Facility), nil
	case 6:
		if method.IsMobile() {
			return r.startMobilePayment(ctx, req, draft), nil
		}
		return bookingSummary(draft, method), nil
	}

	confirmed, err := parseConfirm(path.At(6))
	if err != nil {
		return screenInvalidChoice, nil
	}
	if method.IsMobile() {
		if !confirmed {
			return r.cancelMobilePayment(ctx, req, draft)
		}
		return r.confirmMobilePayment(ctx, req, draft)
	}
	if !confirmed {
		return screenBookingCancelled, nil
	}
	return r.confirmBooking(ctx, req.Phone, draft, models.PaymentInfo{Method: method, Amount: payment.Total(draft.Facility, method)})
}

func bookingSummary(d models.BookingDraft, m models.PaymentMethod) Response {
	return Conf("Booking summary:\nFacility: %s\nCounty: %s\nDate: %s\nTime: %s (%s)\nPayment: %s (KES %d)\n1. Confirm\n2. Cancel",
		d.Facility.Label(), d.County.Label(), d.Date, d.Slot.Label(), d.Slot.Hours(), m.Label(), payment.Total(d.Facility, m))
}

func (r *Router) startMobilePayment(ctx context.Context, req Request, draft models.BookingDraft) Response {
	p, err := r.payments.Initiate(ctx, req.SessionID, req.Phone, draft)
	if err != nil {
		slog.Error("Router.startMobilePayment: payment initiation failed", "sessionID", req.SessionID, "phone", req.Phone, "error", err)
		return screenPaymentUnavailable
	}
	return Conf("M-Pesa request of KES %d sent to your phone.\nRef: %s\nEnter your M-Pesa PIN, then:\n1. I have paid\n2. Cancel", p.Amount, p.Reference)
}

// pendingQuery selects the payment this dial started. The phone fallback only
// applies when the gateway sent no session ID.
func pendingQuery(req Request, draft models.BookingDraft) session.PendingQuery {
	return session.PendingQuery{SessionID: req.SessionID, Phone: req.Phone, Draft: draft}
}

func (r *Router) confirmMobilePayment(ctx context.Context, req Request, draft models.BookingDraft) (Response, error) {
	p, err := r.store.ClaimPendingPayment(ctx, pendingQuery(req, draft))
	if errors.Is(err, session.ErrNotFound) {
		slog.Warn("Router.confirmMobilePayment: no pending payment", "sessionID", req.SessionID, "phone", req.Phone)
		return screenVerificationFailed, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("failed to claim pending payment: %w", err)
	}

	a, err := r.createAppointment(ctx, req.Phone, p.Draft, models.PaymentInfo{Method: p.Method, Amount: p.Amount, Reference: p.Reference})
	if err != nil {
		return Response{}, err
	}
	if err := r.notifier.BookingConfirmation(ctx, a); err != nil {
		slog.Warn("Router.confirmMobilePayment: confirmation SMS not sent", "appointmentID", a.ID, "error", err)
	}
	r.publish(ctx, events.AppointmentBooked, a)
	return Endf("Payment confirmed! ✅\nAppointment ID: %s\nDetails sent via SMS.", a.ID), nil
}

func (r *Router) cancelMobilePayment(ctx context.Context, req Request, draft models.BookingDraft) (Response, error) {
	_, err := r.store.CancelPendingPayment(ctx, pendingQuery(req, draft))
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return Response{}, fmt.Errorf("failed to cancel pending payment: %w", err)
	}
	return screenBookingCancelled, nil
}

func (r *Router) confirmBooking(ctx context.Context, phone string, draft models.BookingDraft, pay models.PaymentInfo) (Response, error) {
	a, err := r.createAppointment(ctx, phone, draft, pay)
	if err != nil {
		return Response{}, err
	}
	if err := r.notifier.BookingConfirmation(ctx, a); err != nil {
		slog.Warn("Router.confirmBooking: confirmation SMS not sent", "appointmentID", a.ID, "error", err)
	}
	r.publish(ctx, events.AppointmentBooked, a)
	return Endf("Booking confirmed! ✅\nAppointment ID: %s\nDetails sent via SMS.", a.ID), nil
}
