package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/ivrbridge/internal/concurrency"
	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/conversation"
	"github.com/harunnryd/ivrbridge/internal/idempotency"
	"github.com/harunnryd/ivrbridge/internal/voice"
)

// ComponentHealth is the per-component entry reported by /health.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthSource reports the health of the components around the gateway.
type HealthSource func() map[string]ComponentHealth

type Option func(*Server)

// WithIdempotency replays the stored reply for Twilio retries carrying an
// I-Twilio-Idempotency-Token header.
func WithIdempotency(store *idempotency.Store, ttl time.Duration) Option {
	return func(s *Server) {
		s.idem = store
		if ttl > 0 {
			s.idemTTL = ttl
		}
	}
}

func WithHealthSource(src HealthSource) Option {
	return func(s *Server) {
		s.health = src
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server exposes the Twilio, VoiceXML, AI and admin webhooks over HTTP.
type Server struct {
	driver    *conversation.Driver
	twiml     *voice.TwiML
	vxml      *voice.VoiceXML
	baseURL   string
	authToken string
	validate  bool

	idem     *idempotency.Store
	idemTTL  time.Duration
	idemKeys *concurrency.KeyedMutex

	health HealthSource
	now    func() time.Time
	mux    *http.ServeMux
}

func New(driver *conversation.Driver, cfg config.GatewayConfig, opts ...Option) (*Server, error) {
	ttl, err := config.DurationOrDefault(cfg.IdempotencyTTL, config.DefaultGatewayIdempotencyTTL)
	if err != nil {
		return nil, err
	}

	settings := voice.SettingsFrom(cfg)
	s := &Server{
		driver:    driver,
		twiml:     voice.NewTwiML(settings),
		vxml:      voice.NewVoiceXML(settings),
		baseURL:   settings.BaseURL,
		authToken: cfg.TwilioAuthToken,
		validate:  cfg.ValidateSignature,
		idemTTL:   ttl,
		idemKeys:  concurrency.NewKeyedMutex(),
		now:       time.Now,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.validate && s.authToken == "" {
		slog.Warn("Twilio signature validation enabled without an auth token; all Twilio webhooks will be rejected")
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.Handle("POST /twilio/voice", s.twilio(s.handleTwilioVoice))
	s.mux.Handle("POST /twilio/gather", s.twilio(s.handleTwilioGather))
	s.mux.Handle("POST /twilio/action", s.twilio(s.handleTwilioAction))
	s.mux.Handle("POST /twilio/status", s.twilio(s.handleTwilioStatus))

	s.mux.HandleFunc("POST /ivr/incoming-call", s.handleIncomingCall)
	s.mux.HandleFunc("POST /ivr/user-input", s.handleUserInput)
	s.mux.HandleFunc("POST /ivr/transaction", s.handleTransaction)

	s.mux.HandleFunc("POST /ai/webhook", s.handleAIWebhook)

	s.mux.HandleFunc("GET /session/{callID}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /session/{callID}", s.handleEndSession)
	s.mux.HandleFunc("GET /sessions/active", s.handleActiveSessions)
}

// twilio wraps a Twilio webhook with signature checks and retry replay.
func (s *Server) twilio(fn http.HandlerFunc) http.Handler {
	return s.verifySignature(s.replayRetries(fn))
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.trace(s.recoverPanics(s.mux))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeMarkup(w http.ResponseWriter, contentType string, status int, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}
