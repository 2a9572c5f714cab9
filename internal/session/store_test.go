package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/util"
)

// getenvOrSkip returns the env var value or skips the test if unset.
func getenvOrSkip(t *testing.T, key string) string {
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set; skipping", key)
	}
	return v
}

func newPending(ref, sessionID, phone string) *models.PendingPayment {
	return &models.PendingPayment{
		Reference: ref,
		SessionID: sessionID,
		Phone:     phone,
		Amount:    550,
		Method:    models.PaymentMPesa,
		Status:    models.PaymentStatusPending,
		Draft: models.BookingDraft{
			Facility: models.FacilityHealthCentre,
			County:   models.CountyNairobi,
			Date:     "15-08-2025",
			Slot:     models.SlotMorning,
		},
		CreatedAt: time.Now(),
	}
}

func queryFor(p *models.PendingPayment) PendingQuery {
	return PendingQuery{SessionID: p.SessionID, Phone: p.Phone, Draft: p.Draft}
}

func newAppointment(id, phone, date string, method models.PaymentMethod) *models.Appointment {
	return models.NewAppointment(id, phone,
		models.BookingDraft{Facility: models.FacilityDispensary, County: models.CountyMombasa, Date: date, Slot: models.SlotEvening},
		models.PaymentInfo{Method: method, Amount: 200},
		time.Now())
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("claim consumes pending payment once", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "sess-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		claimed, err := s.ClaimPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, claimed.Status)
		assert.Equal(t, 550, claimed.Amount)

		_, err = s.ClaimPendingPayment(ctx, queryFor(p))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("find does not consume", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "find-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		found, err := s.FindPendingPayment(ctx, PendingQuery{SessionID: p.SessionID, Draft: p.Draft})
		require.NoError(t, err)
		assert.Equal(t, p.Reference, found.Reference)
		assert.Equal(t, models.PaymentStatusPending, found.Status)

		claimed, err := s.ClaimPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		assert.Equal(t, p.Reference, claimed.Reference)
	})

	t.Run("unknown session never falls back to phone", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "a-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		_, err := s.ClaimPendingPayment(ctx, PendingQuery{SessionID: "b-" + phone, Phone: phone, Draft: p.Draft})
		assert.ErrorIs(t, err, ErrNotFound)

		claimed, err := s.ClaimPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		assert.Equal(t, p.Reference, claimed.Reference)
	})

	t.Run("phone fallback without session takes oldest match", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		first := newPending(util.GeneratePaymentReference(), "a-"+phone, phone)
		second := newPending(util.GeneratePaymentReference(), "b-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, first))
		require.NoError(t, s.CreatePendingPayment(ctx, second))

		p, err := s.ClaimPendingPayment(ctx, PendingQuery{Phone: phone, Draft: first.Draft})
		require.NoError(t, err)
		assert.Equal(t, first.Reference, p.Reference)

		p, err = s.ClaimPendingPayment(ctx, PendingQuery{Phone: phone, Draft: first.Draft})
		require.NoError(t, err)
		assert.Equal(t, second.Reference, p.Reference)
	})

	t.Run("claim requires matching draft", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "d-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		other := p.Draft
		other.Facility = models.FacilityDispensary
		_, err := s.ClaimPendingPayment(ctx, PendingQuery{SessionID: p.SessionID, Phone: phone, Draft: other})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ClaimPendingPayment(ctx, PendingQuery{Phone: phone, Draft: other})
		assert.ErrorIs(t, err, ErrNotFound)

		claimed, err := s.ClaimPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		assert.Equal(t, p.Reference, claimed.Reference)
	})

	t.Run("session claim leaves other sessions on the phone", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		first := newPending(util.GeneratePaymentReference(), "x-"+phone, phone)
		second := newPending(util.GeneratePaymentReference(), "y-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, first))
		require.NoError(t, s.CreatePendingPayment(ctx, second))

		p, err := s.ClaimPendingPayment(ctx, queryFor(second))
		require.NoError(t, err)
		assert.Equal(t, second.Reference, p.Reference)

		p, err = s.ClaimPendingPayment(ctx, PendingQuery{Phone: phone, Draft: first.Draft})
		require.NoError(t, err)
		assert.Equal(t, first.Reference, p.Reference)

		_, err = s.ClaimPendingPayment(ctx, PendingQuery{Phone: phone, Draft: first.Draft})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("one pending payment per session", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "one-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))
		err := s.CreatePendingPayment(ctx, newPending(util.GeneratePaymentReference(), p.SessionID, phone))
		assert.ErrorIs(t, err, ErrPendingExists)

		_, err = s.CancelPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		require.NoError(t, s.CreatePendingPayment(ctx, newPending(util.GeneratePaymentReference(), p.SessionID, phone)))
	})

	t.Run("cancel removes pending payment", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "c-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		cancelled, err := s.CancelPendingPayment(ctx, queryFor(p))
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCancelled, cancelled.Status)

		_, err = s.ClaimPendingPayment(ctx, queryFor(p))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate payment reference rejected", func(t *testing.T) {
		s := newStore(t)
		ref := util.GeneratePaymentReference()
		require.NoError(t, s.CreatePendingPayment(ctx, newPending(ref, "", "+254700000001")))
		assert.ErrorIs(t, s.CreatePendingPayment(ctx, newPending(ref, "", "+254700000002")), ErrDuplicateID)
	})

	t.Run("duplicate appointment id never overwrites", func(t *testing.T) {
		s := newStore(t)
		id := util.GenerateAppointmentID()
		require.NoError(t, s.CreateAppointment(ctx, newAppointment(id, "+254700000001", "01-09-2025", models.PaymentCash)))
		err := s.CreateAppointment(ctx, newAppointment(id, "+254700000002", "02-09-2025", models.PaymentCash))
		assert.ErrorIs(t, err, ErrDuplicateID)

		a, err := s.GetAppointment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "+254700000001", a.Phone)
	})

	t.Run("list hides cancelled and keeps booking order", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		ids := []string{util.GenerateAppointmentID(), util.GenerateAppointmentID(), util.GenerateAppointmentID()}
		for _, id := range ids {
			require.NoError(t, s.CreateAppointment(ctx, newAppointment(id, phone, "03-09-2025", models.PaymentCash)))
		}

		cancelled, err := s.CancelAppointment(ctx, ids[1])
		require.NoError(t, err)
		assert.Equal(t, models.AppointmentStatusCancelled, cancelled.Status)

		list, err := s.ListAppointments(ctx, phone)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, ids[0], list[0].ID)
		assert.Equal(t, ids[2], list[1].ID)

		_, err = s.CancelAppointment(ctx, ids[1])
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("reschedule moves the date index", func(t *testing.T) {
		s := newStore(t)
		id := util.GenerateAppointmentID()
		require.NoError(t, s.CreateAppointment(ctx, newAppointment(id, "+254700000009", "04-09-2025", models.PaymentInsurance)))

		a, err := s.RescheduleAppointment(ctx, id, "20-09-2025")
		require.NoError(t, err)
		assert.Equal(t, "20-09-2025", a.Date)
		assert.Equal(t, models.AppointmentStatusBooked, a.Status)

		on, err := s.AppointmentsOn(ctx, "20-09-2025")
		require.NoError(t, err)
		assert.True(t, containsID(on, id))

		old, err := s.AppointmentsOn(ctx, "04-09-2025")
		require.NoError(t, err)
		assert.False(t, containsID(old, id))
	})

	t.Run("missing appointment", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAppointment(ctx, "AFY-NOPE00")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.CancelAppointment(ctx, "AFY-NOPE00")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent claims yield one winner", func(t *testing.T) {
		s := newStore(t)
		phone := "+2547" + util.GenerateRandomCode(8)
		p := newPending(util.GeneratePaymentReference(), "race-"+phone, phone)
		require.NoError(t, s.CreatePendingPayment(ctx, p))

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ClaimPendingPayment(ctx, queryFor(p)); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func containsID(list []*models.Appointment, id string) bool {
	for _, a := range list {
		if a.ID == id {
			return true
		}
	}
	return false
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewInMemoryStore() })
}

func TestRedisStore(t *testing.T) {
	addr := getenvOrSkip(t, "REDIS_ADDR")
	runStoreSuite(t, func(t *testing.T) Store {
		prefix := "afyalink-test:" + util.GenerateRandomHex(8) + ":"
		s, err := NewRedisStore(context.Background(), WithRedisAddr(addr), WithKeyPrefix(prefix))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStoreClaimCleansIndexes(t *testing.T) {
	addr := getenvOrSkip(t, "REDIS_ADDR")
	ctx := context.Background()
	// Hash-tagged prefix, as a Redis Cluster deployment would use.
	s, err := NewRedisStore(ctx, WithRedisAddr(addr), WithKeyPrefix("{afyalink-test-"+util.GenerateRandomHex(8)+"}:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	phone := "+2547" + util.GenerateRandomCode(8)
	p := newPending(util.GeneratePaymentReference(), "idx-"+phone, phone)
	require.NoError(t, s.CreatePendingPayment(ctx, p))

	// The gateway may report another number for the same session; the
	// payment's own phone index is what gets cleaned.
	_, err = s.ClaimPendingPayment(ctx, PendingQuery{SessionID: p.SessionID, Phone: "+254799000000", Draft: p.Draft})
	require.NoError(t, err)

	n, err := s.client.LLen(ctx, s.pendingPhoneKey(phone)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	exists, err := s.client.Exists(ctx, s.pendingSessionPrefix()+p.SessionID, s.pendingKey(p.Reference)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateAppointment(ctx, newAppointment("AFY-COPY01", "+254700111222", "05-09-2025", models.PaymentCash)))

	a, err := s.GetAppointment(ctx, "AFY-COPY01")
	require.NoError(t, err)
	a.Status = models.AppointmentStatusCancelled

	list, err := s.ListAppointments(ctx, "+254700111222")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
