package ussd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/payment"
	"github.com/afyalink/afyalink/internal/session"
	"github.com/afyalink/afyalink/internal/testutil"
	"github.com/afyalink/afyalink/internal/twiliosms"
)

const testPhone = testutil.DefaultPhone

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AppointmentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.AppointmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	router    *Router
	store     *session.InMemoryStore
	sms       *twiliosms.MockClient
	ai        *genai.MockGenerator
	publisher *recordingPublisher
}

// newFixture wires a Router to in-memory collaborators. Receipts are drained
// so sends never block on a full channel.
func newFixture(t *testing.T, opts ...RouterOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     session.NewInMemoryStore(),
		sms:       twiliosms.NewMockClient(),
		ai:        &genai.MockGenerator{Response: "Drink plenty of fluids and rest. Visit a clinic if the fever lasts beyond 3 days."},
		publisher: &recordingPublisher{},
	}
	svc := messaging.NewTwilioService(f.sms)
	go func() {
		for range svc.Receipts() {
		}
	}()
	t.Cleanup(func() { _ = svc.Stop() })

	opts = append([]RouterOption{WithPublisher(f.publisher)}, opts...)
	f.router = NewRouter(f.store, payment.NewSimulator(f.store), f.ai, notify.NewDispatcher(svc), opts...)
	return f
}

func (f *fixture) dial(t *testing.T, sessionID string, steps ...string) Response {
	t.Helper()
	resp, err := f.router.Handle(context.Background(), Decode(testutil.USSDForm(sessionID, testPhone, steps...)))
	require.NoError(t, err)
	return resp
}

func TestParseStepPath(t *testing.T) {
	assert.Equal(t, 0, ParseStepPath("").Len())
	p := ParseStepPath("2*1*15-08-2025")
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "15-08-2025", p.Last())
	assert.Equal(t, "", p.At(5))
	assert.Equal(t, StepPath{"1", ""}, ParseStepPath("1*"))
}

func TestDecode(t *testing.T) {
	req := Decode(testutil.USSDForm("ATUid_9", " +254700111222 ", "3", "1"))
	assert.Equal(t, "ATUid_9", req.SessionID)
	assert.Equal(t, "+254700111222", req.Phone)
	assert.Equal(t, testutil.DefaultServiceCode, req.ServiceCode)
	assert.Equal(t, StepPath{"3", "1"}, req.Path)

	empty := Decode(nil)
	assert.Equal(t, "", empty.Phone)
	assert.Equal(t, 0, empty.Path.Len())
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "CON Enter your age (1-120):", screenAgePrompt.String())
	assert.Equal(t, "END Invalid choice. Please try again.", screenInvalidChoice.String())
	assert.Equal(t, "END 100% done", End("100% done").String())
}

func TestTopLevelMenu(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "CON Welcome to AfyaLink 🏥\n1. Triage Assessment\n2. Book Clinic Visit\n3. My Appointments\n99. Exit",
		f.dial(t, "s1").String())
	assert.Equal(t, "END Thank you for using AfyaLink. Stay healthy!", f.dial(t, "s1", "99").String())
	assert.Equal(t, screenInvalidChoice, f.dial(t, "s1", "99", "1"))
	assert.Equal(t, screenInvalidChoice, f.dial(t, "s1", "4"))
	assert.Equal(t, screenWelcome, f.dial(t, "s1", ""))
	assert.Equal(t, screenInvalidChoice, f.dial(t, "s1", "01"))
}

func TestHandleDeterministic(t *testing.T) {
	f := newFixture(t)
	paths := [][]string{{"1", "30", "1"}, {"2", "2", "4", "15-08-2025", "1"}, {"3"}}
	for _, p := range paths {
		assert.Equal(t, f.dial(t, "s1", p...), f.dial(t, "s2", p...))
	}
}

type failingStore struct {
	session.Store
}

func (failingStore) ListAppointments(context.Context, string) ([]*models.Appointment, error) {
	return nil, errors.New("connection reset")
}

func TestHandleStoreFailure(t *testing.T) {
	f := newFixture(t)
	r := NewRouter(failingStore{Store: f.store}, payment.NewSimulator(f.store), f.ai, f.router.notifier)

	resp, err := r.Handle(context.Background(), Decode(testutil.USSDForm("s1", testPhone, "3")))
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, ScreenUnavailable, resp)
	assert.Equal(t, "END Service temporarily unavailable. Please try again later.", resp.String())
}

// TestHandleTotal checks every path yields a screen without error, across
// valid prefixes of each flow extended with arbitrary tokens.
func TestHandleTotal(t *testing.T) {
	f := newFixture(t, WithAITimeout(time.Second))
	tokens := []string{"", "0", "1", "2", "3", "4", "5", "99", "abc", "30", "fever", "15-08-2025", "32-01-2023"}
	prefixes := [][]string{
		{"1"}, {"1", "30"}, {"1", "30", "2"}, {"1", "30", "2", "fever"}, {"1", "30", "2", "fever", "3"},
		{"2"}, {"2", "1"}, {"2", "1", "3"}, {"2", "1", "3", "15-08-2025"}, {"2", "1", "3", "15-08-2025", "2"},
		{"2", "1", "3", "15-08-2025", "2", "1"}, {"2", "1", "3", "15-08-2025", "2", "3"},
		{"3"}, {"3", "1"}, {"3", "1", "2"},
	}

	// One booked M-Pesa appointment and one cash appointment give the
	// appointments flow something to walk.
	f.dial(t, "seed1", "2", "2", "1", "15-08-2025", "1", "1")
	f.dial(t, "seed1", "2", "2", "1", "15-08-2025", "1", "1", "1")
	f.dial(t, "seed2", "2", "1", "1", "16-08-2025", "2", "3", "1")

	for _, prefix := range prefixes {
		for _, a := range tokens {
			for _, b := range tokens {
				path := append(append([]string{}, prefix...), a, b)
				for depth := len(prefix); depth <= len(path); depth++ {
					resp, err := f.router.Handle(context.Background(), Decode(testutil.USSDForm("total", testPhone, path[:depth]...)))
					require.NoError(t, err, "path %v", path[:depth])
					require.NotEmpty(t, resp.Text, "path %v", path[:depth])
				}
			}
		}
	}
}
