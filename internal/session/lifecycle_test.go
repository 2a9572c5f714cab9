package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/models"
)

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()

	p := &models.PendingPayment{Status: models.PaymentStatusPending}
	require.NoError(t, advancePayment(ctx, p, EventComplete))
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)

	// never backward
	assert.ErrorIs(t, advancePayment(ctx, p, EventCancel), ErrInvalidTransition)
	assert.ErrorIs(t, advancePayment(ctx, p, EventComplete), ErrInvalidTransition)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
}

func TestAppointmentLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	a := &models.Appointment{Status: models.AppointmentStatusBooked}
	require.NoError(t, advanceAppointment(ctx, a, EventReschedule, now))
	assert.Equal(t, models.AppointmentStatusBooked, a.Status)
	assert.Equal(t, now, a.UpdatedAt)

	require.NoError(t, advanceAppointment(ctx, a, EventCancel, now))
	assert.Equal(t, models.AppointmentStatusCancelled, a.Status)

	assert.ErrorIs(t, advanceAppointment(ctx, a, EventReschedule, now), ErrInvalidTransition)
	assert.ErrorIs(t, advanceAppointment(ctx, a, EventCancel, now), ErrInvalidTransition)
}
