package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afyalink/afyalink/internal/models"
)

const (
	// DefaultPendingTTL bounds how long an unconfirmed mobile payment is kept.
	DefaultPendingTTL = 30 * time.Minute
	// DefaultAppointmentTTL bounds how long appointment records are kept.
	DefaultAppointmentTTL = 90 * 24 * time.Hour
	// DefaultKeyPrefix namespaces every key written by RedisStore.
	DefaultKeyPrefix = "afyalink:"

	maxWatchRetries = 5
)

// createPendingScript stores a pending payment and its indexes in one step.
// KEYS[1] is the payment key, KEYS[2] the phone list, KEYS[3] the session
// index; ARGV[1] is the JSON payload, ARGV[2] the reference, ARGV[3] the TTL in
// milliseconds and ARGV[4] is "1" when the payment carries a session ID.
var createPendingScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 'duplicate_reference'
end
if ARGV[4] == '1' then
	if redis.call('EXISTS', KEYS[3]) == 1 then
		return 'duplicate_session'
	end
	redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 'ok'
`)

// takePendingScript selects the pending payment a PendingQuery describes and,
// when ARGV[8] is "1", removes it with its indexes. KEYS[1] is the session
// index and KEYS[2] the phone list. ARGV[1..3] are the payment, session and
// phone list key prefixes, ARGV[4..7] the draft's facility, county, date and
// slot, and ARGV[9] is "session" or "phone" to pick the index searched.
//
// Payment keys are derived inside the script, so every key of a store must
// live on one Redis node; on Redis Cluster give the prefix a hash tag such as
// "{afyalink}:".
var takePendingScript = redis.NewScript(`
local function matches(p)
	local d = p.draft
	return d ~= nil and tostring(d.facility) == ARGV[4] and tostring(d.county) == ARGV[5]
		and d.date == ARGV[6] and tostring(d.slot) == ARGV[7]
end

-- returns the payment JSON when ref matches, and whether ref is stale
local function take(ref)
	local key = ARGV[1] .. ref
	local data = redis.call('GET', key)
	if not data then
		return nil, true
	end
	local p = cjson.decode(data)
	if not matches(p) then
		return nil, false
	end
	if ARGV[8] == '1' then
		redis.call('DEL', key)
		redis.call('LREM', ARGV[3] .. p.phone, 0, ref)
		if p.session_id and p.session_id ~= '' then
			redis.call('DEL', ARGV[2] .. p.session_id)
		end
	end
	return data, false
end

if ARGV[9] == 'session' then
	local ref = redis.call('GET', KEYS[1])
	if not ref then
		return false
	end
	local data, stale = take(ref)
	if stale then
		redis.call('DEL', KEYS[1])
	end
	return data or false
end

local refs = redis.call('LRANGE', KEYS[2], 0, -1)
for _, r in ipairs(refs) do
	local data, stale = take(r)
	if stale then
		redis.call('LREM', KEYS[2], 0, r)
	elseif data then
		return data
	end
end
return false
`)

// RedisOpts holds configuration for RedisStore.
type RedisOpts struct {
	Addr           string
	Password       string
	DB             int
	KeyPrefix      string
	PendingTTL     time.Duration
	AppointmentTTL time.Duration
}

// RedisOption configures RedisStore.
type RedisOption func(*RedisOpts)

// WithRedisAddr sets the Redis server address (host:port).
func WithRedisAddr(addr string) RedisOption {
	return func(o *RedisOpts) { o.Addr = addr }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(o *RedisOpts) { o.Password = password }
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) RedisOption {
	return func(o *RedisOpts) { o.DB = db }
}

// WithKeyPrefix overrides DefaultKeyPrefix. On Redis Cluster the prefix must
// carry a hash tag, e.g. "{afyalink}:", so a store's keys share one slot.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *RedisOpts) { o.KeyPrefix = prefix }
}

// WithPendingTTL sets the expiry of pending payment keys.
func WithPendingTTL(ttl time.Duration) RedisOption {
	return func(o *RedisOpts) { o.PendingTTL = ttl }
}

// WithAppointmentTTL sets the expiry of appointment keys.
func WithAppointmentTTL(ttl time.Duration) RedisOption {
	return func(o *RedisOpts) { o.AppointmentTTL = ttl }
}

// RedisStore is a Store shared by every gateway replica through Redis.
type RedisStore struct {
	client         *redis.Client
	prefix         string
	pendingTTL     time.Duration
	appointmentTTL time.Duration
	now            func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection with PING.
// Addr falls back to the REDIS_ADDR environment variable.
func NewRedisStore(ctx context.Context, opts ...RedisOption) (*RedisStore, error) {
	cfg := RedisOpts{
		KeyPrefix:      DefaultKeyPrefix,
		PendingTTL:     DefaultPendingTTL,
		AppointmentTTL: DefaultAppointmentTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore.NewRedisStore: ping failed", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	slog.Debug("RedisStore.NewRedisStore: connected", "addr", cfg.Addr, "db", cfg.DB, "prefix", cfg.KeyPrefix)

	return &RedisStore{
		client:         client,
		prefix:         cfg.KeyPrefix,
		pendingTTL:     cfg.PendingTTL,
		appointmentTTL: cfg.AppointmentTTL,
		now:            time.Now,
	}, nil
}

func (s *RedisStore) pendingKey(ref string) string { return s.prefix + "pending:" + ref }
func (s *RedisStore) pendingSessionPrefix() string { return s.prefix + "pending:session:" }
func (s *RedisStore) pendingPhonePrefix() string { return s.prefix + "pending:phone:" }
func (s *RedisStore) pendingPhoneKey(phone string) string { return s.pendingPhonePrefix() + phone }
func (s *RedisStore) apptKey(id string) string { return s.prefix + "appt:" + id }
func (s *RedisStore) apptPhoneKey(phone string) string { return s.prefix + "appt:phone:" + phone }
func (s *RedisStore) apptDateKey(date string) string { return s.prefix + "appt:date:" + date }

func (s *RedisStore) CreatePendingPayment(ctx context.Context, p *models.PendingPayment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pending payment: %w", err)
	}
	hasSession := "0"
	if p.SessionID != "" {
		hasSession = "1"
	}
	keys := []string{s.pendingKey(p.Reference), s.pendingPhoneKey(p.Phone), s.pendingSessionPrefix() + p.SessionID}
	res, err := createPendingScript.Run(ctx, s.client, keys, data, p.Reference, s.pendingTTL.Milliseconds(), hasSession).Text()
	if err != nil {
		return fmt.Errorf("failed to store pending payment %s: %w", p.Reference, err)
	}
	switch res {
	case "duplicate_reference":
		return fmt.Errorf("%w: payment %s", ErrDuplicateID, p.Reference)
	case "duplicate_session":
		return fmt.Errorf("%w: session %s", ErrPendingExists, p.SessionID)
	}
	slog.Debug("RedisStore.CreatePendingPayment: stored", "reference", p.Reference, "phone", p.Phone, "amount", p.Amount)
	return nil
}

func (s *RedisStore) FindPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error) {
	return s.runTakeScript(ctx, q, false)
}

func (s *RedisStore) ClaimPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error) {
	return s.takePendingPayment(ctx, q, EventComplete)
}

func (s *RedisStore) CancelPendingPayment(ctx context.Context, q PendingQuery) (*models.PendingPayment, error) {
	return s.takePendingPayment(ctx, q, EventCancel)
}

func (s *RedisStore) takePendingPayment(ctx context.Context, q PendingQuery, event string) (*models.PendingPayment, error) {
	p, err := s.runTakeScript(ctx, q, true)
	if err != nil {
		return nil, err
	}
	if err := advancePayment(ctx, p, event); err != nil {
		return nil, err
	}
	slog.Debug("RedisStore.takePendingPayment: consumed", "reference", p.Reference, "event", event)
	return p, nil
}

// runTakeScript looks up the payment q selects, removing it when consume is set.
func (s *RedisStore) runTakeScript(ctx context.Context, q PendingQuery, consume bool) (*models.PendingPayment, error) {
	mode := "session"
	if q.SessionID == "" {
		if q.Phone == "" {
			return nil, ErrNotFound
		}
		mode = "phone"
	}
	consumeArg := "0"
	if consume {
		consumeArg = "1"
	}
	keys := []string{s.pendingSessionPrefix() + q.SessionID, s.pendingPhoneKey(q.Phone)}
	args := []interface{}{
		s.prefix + "pending:", s.pendingSessionPrefix(), s.pendingPhonePrefix(),
		strconv.Itoa(int(q.Draft.Facility)), strconv.Itoa(int(q.Draft.County)), q.Draft.Date, strconv.Itoa(int(q.Draft.Slot)),
		consumeArg, mode,
	}
	raw, err := takePendingScript.Run(ctx, s.client, keys, args...).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending payment: %w", err)
	}

	var p models.PendingPayment
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode pending payment: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode appointment: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.apptKey(a.ID), data, s.appointmentTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store appointment %s: %w", a.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: appointment %s", ErrDuplicateID, a.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.apptPhoneKey(a.Phone), a.ID)
		pipe.Expire(ctx, s.apptPhoneKey(a.Phone), s.appointmentTTL)
		pipe.RPush(ctx, s.apptDateKey(a.Date), a.ID)
		pipe.Expire(ctx, s.apptDateKey(a.Date), s.appointmentTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index appointment %s: %w", a.ID, err)
	}
	slog.Debug("RedisStore.CreateAppointment: stored", "id", a.ID, "phone", a.Phone)
	return nil
}

func (s *RedisStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	data, err := s.client.Get(ctx, s.apptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment %s: %w", id, err)
	}
	var a models.Appointment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode appointment %s: %w", id, err)
	}
	return &a, nil
}

func (s *RedisStore) ListAppointments(ctx context.Context, phone string) ([]*models.Appointment, error) {
	return s.listBooked(ctx, s.apptPhoneKey(phone))
}

func (s *RedisStore) AppointmentsOn(ctx context.Context, date string) ([]*models.Appointment, error) {
	return s.listBooked(ctx, s.apptDateKey(date))
}

func (s *RedisStore) listBooked(ctx context.Context, indexKey string) ([]*models.Appointment, error) {
	ids, err := s.client.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.apptKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	var out []*models.Appointment
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired record still referenced by the index
			continue
		}
		var a models.Appointment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			slog.Warn("RedisStore.listBooked: skipping undecodable appointment", "id", ids[i], "error", err)
			continue
		}
		if a.Status == models.AppointmentStatusBooked {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (s *RedisStore) CancelAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.updateAppointment(ctx, id, EventCancel, "")
}

func (s *RedisStore) RescheduleAppointment(ctx context.Context, id, date string) (*models.Appointment, error) {
	return s.updateAppointment(ctx, id, EventReschedule, date)
}

// updateAppointment applies event under WATCH so a concurrent writer forces a retry.
func (s *RedisStore) updateAppointment(ctx context.Context, id, event, newDate string) (*models.Appointment, error) {
	key := s.apptKey(id)
	var result models.Appointment

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var a models.Appointment
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to decode appointment %s: %w", id, err)
		}
		oldDate := a.Date
		if err := advanceAppointment(ctx, &a, event, s.now()); err != nil {
			return err
		}
		if newDate != "" {
			a.Date = newDate
		}
		updated, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("failed to encode appointment %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			if newDate != "" && newDate != oldDate {
				pipe.LRem(ctx, s.apptDateKey(oldDate), 0, id)
				pipe.RPush(ctx, s.apptDateKey(newDate), id)
				pipe.Expire(ctx, s.apptDateKey(newDate), s.appointmentTTL)
			}
			return nil
		})
		if err == nil {
			result = a
		}
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			slog.Debug("RedisStore.updateAppointment: applied", "id", id, "event", event, "status", result.Status)
			return &result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to update appointment %s: %w", id, err)
		}
		slog.Debug("RedisStore.updateAppointment: concurrent write, retrying", "id", id, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("failed to update appointment %s: %w", id, redis.TxFailedErr)
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
