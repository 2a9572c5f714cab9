package api

import (
	"net/http"
	"time"

	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/store"
	"github.com/afyalink/afyalink/internal/ussd"
)

// Dependencies are the modules the HTTP handlers drive. Nil Router, Assistant
// or Notifier leaves the server not ready.
type Dependencies struct {
	Router    *ussd.Router
	Pathways  *ussd.PathwaysRouter
	Career    *ussd.CareerRouter
	Assistant genai.Generator
	Notifier  *notify.Dispatcher
	Ledger    store.Store
}

// Server serves the gateway callbacks.
type Server struct {
	router    *ussd.Router
	pathways  *ussd.PathwaysRouter
	career    *ussd.CareerRouter
	assistant genai.Generator
	notifier  *notify.Dispatcher
	ledger    store.Store
	limiter   *rateLimiter
	addr      string
	aiTimeout time.Duration
}

// NewServer creates a Server over deps.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := buildOpts(opts)
	return &Server{
		router:    deps.Router,
		pathways:  deps.Pathways,
		career:    deps.Career,
		assistant: deps.Assistant,
		notifier:  deps.Notifier,
		ledger:    deps.Ledger,
		limiter:   newRateLimiter(cfg.RateLimit),
		addr:      cfg.Addr,
		aiTimeout: cfg.AITimeout,
	}
}

// Ready reports whether the AI and SMS collaborators are configured.
func (s *Server) Ready() bool {
	return s.router != nil && s.assistant != nil && s.notifier != nil
}

// Handler returns the routed handler wrapped in recover, logging and rate
// limiting, outermost first.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ussd", s.ussdHandler)
	mux.HandleFunc("/ussd/pathways", s.pathwaysHandler)
	mux.HandleFunc("/ussd/career", s.careerHandler)
	mux.HandleFunc("/sms", s.smsHandler)
	mux.HandleFunc("/voice", s.voiceHandler)
	mux.HandleFunc("/receipts", s.receiptsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return recoverMiddleware(loggingMiddleware(s.limiter.middleware(mux)))
}
