// Package api wires AfyaLink's modules together and serves the gateway
// callbacks: the AfyaLink, Pathways Aid and Career Buddy USSD menus, the SMS
// and voice assistants, the receipts ledger and a health check.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/afyalink/afyalink/internal/events"
	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/payment"
	"github.com/afyalink/afyalink/internal/scheduler"
	"github.com/afyalink/afyalink/internal/session"
	"github.com/afyalink/afyalink/internal/store"
	"github.com/afyalink/afyalink/internal/twiliosms"
	"github.com/afyalink/afyalink/internal/ussd"
)

const (
	// DefaultServerAddress is the listen address when none is configured.
	DefaultServerAddress = ":8080"
	// DefaultRateLimitPerMinute is the per-client request budget.
	DefaultRateLimitPerMinute = 600
	// ProviderOpenAI and ProviderGemini select the AI backend.
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	shutdownTimeout = 10 * time.Second
)

// Opts holds configuration for the API server and the modules Run wires.
type Opts struct {
	Addr            string
	Provider        string
	AITimeout       time.Duration
	SenderID        string
	DryRun          bool
	SMTPHost        string
	SMTPPort        string
	SMTPFrom        string
	ReportsReceiver string
	KafkaBrokers    []string
	KafkaTopic      string
	RateLimit       int
	ReminderCron    string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithProvider selects the AI backend, ProviderOpenAI or ProviderGemini.
func WithProvider(provider string) Option {
	return func(o *Opts) { o.Provider = strings.ToLower(strings.TrimSpace(provider)) }
}

// WithAITimeout bounds the triage and assistant AI calls.
func WithAITimeout(d time.Duration) Option {
	return func(o *Opts) { o.AITimeout = d }
}

// WithSenderID sets the SMS sender ID for AfyaLink messages.
func WithSenderID(id string) Option {
	return func(o *Opts) { o.SenderID = id }
}

// WithDryRun logs outbound SMS and calls instead of sending them, and lets Run
// start without Twilio credentials.
func WithDryRun(enabled bool) Option {
	return func(o *Opts) { o.DryRun = enabled }
}

// WithSMTP configures the email relay for Pathways Aid reports.
func WithSMTP(host, port, from string) Option {
	return func(o *Opts) {
		o.SMTPHost = host
		o.SMTPPort = port
		o.SMTPFrom = from
	}
}

// WithReportsReceiver sets the address Pathways Aid reports are emailed to.
func WithReportsReceiver(addr string) Option {
	return func(o *Opts) { o.ReportsReceiver = addr }
}

// WithKafka publishes appointment events to topic on brokers.
func WithKafka(brokers []string, topic string) Option {
	return func(o *Opts) {
		o.KafkaBrokers = brokers
		o.KafkaTopic = topic
	}
}

// WithRateLimit sets the per-client requests per minute.
func WithRateLimit(perMinute int) Option {
	return func(o *Opts) { o.RateLimit = perMinute }
}

// WithReminderCron sets the appointment reminder schedule.
func WithReminderCron(expr string) Option {
	return func(o *Opts) { o.ReminderCron = expr }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:         DefaultServerAddress,
		Provider:     ProviderOpenAI,
		AITimeout:    ussd.DefaultAITimeout,
		SenderID:     notify.DefaultSenderID,
		RateLimit:    DefaultRateLimitPerMinute,
		ReminderCron: scheduler.DefaultReminderCron,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Run builds every module from the supplied options and serves until SIGINT
// or SIGTERM. An empty sessionOpts selects the in-memory session store.
// Missing AI or SMS credentials do not stop the server; it answers 503 until
// restarted with them.
func Run(sessionOpts []session.RedisOption, storeOpts []store.Option, genaiOpts []genai.Option, smsOpts []twiliosms.Option, apiOpts []Option) error {
	cfg := buildOpts(apiOpts)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}
	ledger, err := store.Open(storeCfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open receipts ledger: %w", err)
	}
	defer ledger.Close()

	sessions, err := openSessionStore(ctx, sessionOpts)
	if err != nil {
		return err
	}
	defer sessions.Close()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ai, closeAI := openGenerator(ctx, cfg, genaiOpts)
	defer closeAI()

	deps := Dependencies{Ledger: ledger}
	smsService := openMessaging(cfg, smsOpts)
	if smsService != nil {
		go drainReceipts(ctx, "sms", smsService.Receipts(), ledger)
		defer smsService.Stop()

		dispatchOpts := []notify.Option{notify.WithSenderID(cfg.SenderID)}
		if cfg.SMTPHost != "" {
			mailer := messaging.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
			go drainReceipts(ctx, "email", mailer.Receipts(), ledger)
			defer mailer.Stop()
			dispatchOpts = append(dispatchOpts, notify.WithEmailSender(mailer))
		}
		deps.Notifier = notify.NewDispatcher(smsService, dispatchOpts...)
		deps.Pathways = ussd.NewPathwaysRouter(deps.Notifier, ussd.WithReportsReceiver(cfg.ReportsReceiver))

		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.ScheduleReminders(cfg.ReminderCron, scheduler.NewReminders(sessions, deps.Notifier)); err != nil {
			return fmt.Errorf("invalid reminder schedule %q: %w", cfg.ReminderCron, err)
		}
	}
	if ai != nil && deps.Notifier != nil {
		deps.Assistant = ai
		deps.Career = ussd.NewCareerRouter(ai, deps.Notifier, ussd.WithCareerAITimeout(cfg.AITimeout))
		deps.Router = ussd.NewRouter(sessions, payment.NewSimulator(sessions), ai, deps.Notifier,
			ussd.WithAITimeout(cfg.AITimeout), ussd.WithPublisher(publisher))
	}

	srv := NewServer(deps, apiOpts...)
	if !srv.Ready() {
		slog.Warn("Run: AI or SMS gateway not configured, USSD endpoints will answer 503",
			"ai", deps.Assistant != nil, "sms", deps.Notifier != nil)
	}
	return srv.ListenAndServe(ctx)
}

func openSessionStore(ctx context.Context, opts []session.RedisOption) (session.Store, error) {
	if len(opts) == 0 {
		slog.Info("Run: using in-memory session store")
		return session.NewInMemoryStore(), nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := session.NewRedisStore(pingCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open redis session store: %w", err)
	}
	slog.Info("Run: using redis session store")
	return st, nil
}

func openPublisher(cfg Opts) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Debug("Run: no kafka brokers configured, appointment events are dropped")
		return events.NoopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return p, nil
}

// openGenerator returns nil when the selected provider has no credentials.
func openGenerator(ctx context.Context, cfg Opts, opts []genai.Option) (genai.Generator, func()) {
	switch cfg.Provider {
	case ProviderGemini:
		g, err := genai.NewGeminiClient(ctx, opts...)
		if err != nil {
			slog.Warn("Run: gemini client unavailable", "error", err)
			return nil, func() {}
		}
		return g, func() { _ = g.Close() }
	case ProviderOpenAI, "":
		c, err := genai.NewClient(opts...)
		if err != nil {
			slog.Warn("Run: openai client unavailable", "error", err)
			return nil, func() {}
		}
		return c, func() {}
	}
	slog.Warn("Run: unknown AI provider", "provider", cfg.Provider)
	return nil, func() {}
}

// openMessaging returns nil when Twilio is not configured and dry run is off.
func openMessaging(cfg Opts, opts []twiliosms.Option) *messaging.TwilioService {
	serviceOpts := []messaging.TwilioServiceOption{
		messaging.WithDefaultSenderID(cfg.SenderID),
		messaging.WithDryRun(cfg.DryRun),
	}
	client, err := twiliosms.NewClient(opts...)
	if err == nil {
		return messaging.NewTwilioService(client, serviceOpts...)
	}
	if cfg.DryRun {
		slog.Info("Run: twilio not configured, dry run enabled", "reason", err)
		return messaging.NewTwilioService(twiliosms.NewMockClient(), serviceOpts...)
	}
	slog.Warn("Run: twilio client unavailable", "error", err)
	return nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.aiTimeout + 20*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.ListenAndServe: AfyaLink API listening", "addr", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.ListenAndServe: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
