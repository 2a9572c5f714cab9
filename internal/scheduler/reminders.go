package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afyalink/afyalink/internal/models"
)

// DefaultReminderTimeout bounds one reminder run.
const DefaultReminderTimeout = 5 * time.Minute

// dateLayout matches appointment dates, DD-MM-YYYY.
const dateLayout = "02-01-2006"

type appointmentLister interface {
	AppointmentsOn(ctx context.Context, date string) ([]*models.Appointment, error)
}

type reminderSender interface {
	Reminder(ctx context.Context, a *models.Appointment) error
}

// Reminders texts every caller with a booked appointment dated tomorrow.
type Reminders struct {
	store    appointmentLister
	notifier reminderSender
	now      func() time.Time
	timeout  time.Duration
}

// ReminderOption configures Reminders.
type ReminderOption func(*Reminders)

// WithReminderClock overrides time.Now, for tests.
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(r *Reminders) { r.now = now }
}

// WithReminderTimeout bounds one run.
func WithReminderTimeout(d time.Duration) ReminderOption {
	return func(r *Reminders) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewReminders creates a reminder job reading appointments from store and
// texting through notifier.
func NewReminders(store appointmentLister, notifier reminderSender, opts ...ReminderOption) *Reminders {
	r := &Reminders{store: store, notifier: notifier, now: time.Now, timeout: DefaultReminderTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sends reminders for tomorrow's appointments and returns how many were
// sent. A failed SMS is logged and skipped.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tomorrow := r.now().AddDate(0, 0, 1).Format(dateLayout)
	appointments, err := r.store.AppointmentsOn(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("failed to list appointments for %s: %w", tomorrow, err)
	}

	sent := 0
	for _, a := range appointments {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := r.notifier.Reminder(ctx, a); err != nil {
			slog.Warn("Reminders.Run: reminder not sent", "appointmentID", a.ID, "phone", a.Phone, "error", err)
			continue
		}
		sent++
	}
	slog.Info("Reminders.Run: reminders sent", "date", tomorrow, "due", len(appointments), "sent", sent)
	return sent, nil
}

// ScheduleReminders runs r on expr.
func (s *Scheduler) ScheduleReminders(expr string, r *Reminders) error {
	if expr == "" {
		expr = DefaultReminderCron
	}
	return s.AddJob(expr, func() {
		if _, err := r.Run(context.Background()); err != nil {
			slog.Error("Scheduler.ScheduleReminders: reminder run failed", "error", err)
		}
	})
}
