package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/session"
)

// MaxListedAppointments caps the My Appointments list.
const MaxListedAppointments = 3

// Appointment detail actions.
const (
	actionReschedule = "1"
	actionCancel     = "2"
	actionReceipt    = "3"
)

var (
	screenNoAppointments      = End("You have no upcoming appointments.")
	screenInvalidSelection    = End("Invalid selection.")
	screenAppointmentGone     = End("Appointment not found. It may have been cancelled.")
	screenNewDatePrompt       = Con("Enter new date (DD-MM-YYYY):")
	screenReceiptSent         = End("Receipt sent via SMS.")
	screenCancellationAborted = End("Cancellation aborted. Your appointment is still booked.")
)

func (r *Router) appointments(ctx context.Context, req Request) (Response, error) {
	path := req.Path
	if path.Len() > 4 {
		return screenInvalidChoice, nil
	}

	list, err := r.store.ListAppointments(ctx, req.Phone)
	if err != nil {
		return Response{}, fmt.Errorf("failed to list appointments: %w", err)
	}
	if len(list) > MaxListedAppointments {
		list = list[:MaxListedAppointments]
	}

	if path.Len() == 1 {
		if len(list) == 0 {
			return screenNoAppointments, nil
		}
		var b strings.Builder
		b.WriteString("Your appointments:")
		for i, a := range list {
			fmt.Fprintf(&b, "\n%d. %s %s %s", i+1, a.ID, a.Date, a.Slot.Label())
		}
		b.WriteString("\n99. Exit")
		return Con(b.String()), nil
	}

	if path.Len() == 2 && path.At(1) == menuExit {
		return screenExit, nil
	}
	a, ok := selectAppointment(list, path.At(1))
	if !ok {
		return screenInvalidSelection, nil
	}

	if path.Len() == 2 {
		return Conf("Appointment %s\n%s, %s\n%s %s (%s)\n1. Reschedule\n2. Cancel\n3. Receipt",
			a.ID, a.Facility.Label(), a.County.Label(), a.Date, a.Slot.Label(), a.Slot.Hours()), nil
	}

	switch path.At(2) {
	case actionReschedule:
		if path.Len() == 3 {
			return screenNewDatePrompt, nil
		}
		return r.reschedule(ctx, a, path.At(3))
	case actionCancel:
		if !a.Refundable() {
			if path.Len() > 3 {
				return screenInvalidChoice, nil
			}
			return r.cancelAppointment(ctx, a)
		}
		if path.Len() == 3 {
			return Conf("Cancel appointment %s?\nA refund of KES %d will be sent to your %s.\n1. Confirm\n2. Back",
				a.ID, a.Payment.Amount, a.Payment.Method.Label()), nil
		}
		if path.At(3) != "1" {
			return screenCancellationAborted, nil
		}
		return r.cancelAppointment(ctx, a)
	case actionReceipt:
		if path.Len() > 3 {
			return screenInvalidChoice, nil
		}
		if err := r.notifier.Receipt(ctx, a); err != nil {
			slog.Warn("Router.appointments: receipt SMS not sent", "appointmentID", a.ID, "error", err)
		}
		return screenReceiptSent, nil
	}
	return screenInvalidChoice, nil
}

// selectAppointment resolves a 1-based list index.
func selectAppointment(list []*models.Appointment, token string) (*models.Appointment, bool) {
	i, err := strconv.Atoi(token)
	if err != nil || i < 1 || i > len(list) || strconv.Itoa(i) != token {
		return nil, false
	}
	return list[i-1], true
}

func (r *Router) cancelAppointment(ctx context.Context, a *models.Appointment) (Response, error) {
	cancelled, err := r.store.CancelAppointment(ctx, a.ID)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidTransition) {
		return screenAppointmentGone, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	r.publish(ctx, events.AppointmentCancelled, cancelled)

	if cancelled.Refundable() {
		if err := r.notifier.Refund(ctx, cancelled); err != nil {
			slog.Warn("Router.cancelAppointment: refund SMS not sent", "appointmentID", a.ID, "error", err)
		}
		return Endf("Appointment %s cancelled. Refund of KES %d will be processed within 24 hours.", cancelled.ID, cancelled.Payment.Amount), nil
	}
	if err := r.notifier.Cancellation(ctx, cancelled); err != nil {
		slog.Warn("Router.cancelAppointment: cancellation SMS not sent", "appointmentID", a.ID, "error", err)
	}
	return Endf("Appointment %s cancelled.", cancelled.ID), nil
}

func (r *Router) reschedule(ctx context.Context, a *models.Appointment, token string) (Response, error) {
	date, err := ValidateDate(token)
	if err != nil {
		return screenInvalidDate, nil
	}
	updated, err := r.store.RescheduleAppointment(ctx, a.ID, date)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidTransition) {
		return screenAppointmentGone, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	if err := r.notifier.Rescheduled(ctx, updated); err != nil {
		slog.Warn("Router.reschedule: reschedule SMS not sent", "appointmentID", a.ID, "error", err)
	}
	r.publish(ctx, events.AppointmentRescheduled, updated)
	return Endf("Appointment %s rescheduled to %s (%s).", updated.ID, updated.Date, updated.Slot.Label()), nil
}
