package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/afyalink/afyalink/internal/models"
)

// Lifecycle events.
const (
	EventComplete   = "complete"
	EventCancel     = "cancel"
	EventReschedule = "reschedule"
)

func newPaymentFSM(current models.PaymentStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: EventComplete, Src: []string{string(models.PaymentStatusPending)}, Dst: string(models.PaymentStatusCompleted)},
			{Name: EventCancel, Src: []string{string(models.PaymentStatusPending)}, Dst: string(models.PaymentStatusCancelled)},
		},
		fsm.Callbacks{},
	)
}

func newAppointmentFSM(current models.AppointmentStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: EventCancel, Src: []string{string(models.AppointmentStatusBooked)}, Dst: string(models.AppointmentStatusCancelled)},
			{Name: EventReschedule, Src: []string{string(models.AppointmentStatusBooked)}, Dst: string(models.AppointmentStatusBooked)},
		},
		fsm.Callbacks{},
	)
}

// fire runs event against machine. A permitted self-transition is reported by
// fsm as NoTransitionError and counts as success here.
func fire(ctx context.Context, machine *fsm.FSM, event string) error {
	err := machine.Event(ctx, event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, machine.Current(), err)
}

// advancePayment applies event to p's status.
func advancePayment(ctx context.Context, p *models.PendingPayment, event string) error {
	machine := newPaymentFSM(p.Status)
	if err := fire(ctx, machine, event); err != nil {
		return err
	}
	p.Status = models.PaymentStatus(machine.Current())
	return nil
}

// advanceAppointment applies event to a's status and stamps UpdatedAt.
func advanceAppointment(ctx context.Context, a *models.Appointment, event string, now time.Time) error {
	machine := newAppointmentFSM(a.Status)
	if err := fire(ctx, machine, event); err != nil {
		return err
	}
	a.Status = models.AppointmentStatus(machine.Current())
	a.UpdatedAt = now
	return nil
}
