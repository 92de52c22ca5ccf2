// Package httpapi serves the carrier webhooks, audio cache, operator
// endpoints, and client broadcast websocket feed, grounded on the teacher's
// httpapi.Server (chi router, gorilla/websocket upgrader, respondJSON/
// respondError helpers) generalized from a single voice-session gateway to
// a webhook-driven outbound sales agent.
package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/twilio/twilio-go/client"

	"github.com/ent0n29/salesagent/internal/broadcast"
	"github.com/ent0n29/salesagent/internal/observability"
	"github.com/ent0n29/salesagent/internal/quality"
	"github.com/ent0n29/salesagent/internal/reliability"
	"github.com/ent0n29/salesagent/internal/salesstate"
	"github.com/ent0n29/salesagent/internal/storage"
	"github.com/ent0n29/salesagent/internal/turn"
)

// TurnHandler is the subset of turn.Handler the HTTP layer depends on.
type TurnHandler interface {
	StartCall(ctx context.Context, callID, leadID, carrierSessionID, phoneNumber string, tone salesstate.ChannelTone) error
	HandleTurn(ctx context.Context, callID, utterance string) (turn.Outcome, error)
	HandleStatus(ctx context.Context, callID string, status storage.CallStatus) error
}

// QualityReporter is the subset of engine.Engine the operator endpoints need.
type QualityReporter interface {
	QualitySnapshot() quality.AggregateSnapshot
}

// Server wires together every externally-reachable surface of the sales
// agent: carrier webhooks, audio serving, operator endpoints, and the
// broadcast websocket.
type Server struct {
	turn        TurnHandler
	store       storage.Store
	bus         *broadcast.Bus
	metrics     *observability.Metrics
	qualityEng  QualityReporter
	llmBreaker  *reliability.CircuitBreaker
	ttsBreaker  *reliability.CircuitBreaker
	validator   *client.RequestValidator
	verifySigs  bool
	webhookBase string
	ttsCacheDir string
	allowAnyOrigin bool
	upgrader    websocket.Upgrader
}

// Config bundles the Server's dependencies, grounded on the teacher's
// config.Config-driven Server construction.
type Config struct {
	Turn            TurnHandler
	Store           storage.Store
	Bus             *broadcast.Bus
	Metrics         *observability.Metrics
	QualityEngine   QualityReporter
	LLMBreaker      *reliability.CircuitBreaker
	TTSBreaker      *reliability.CircuitBreaker
	CarrierAuthToken string
	VerifySignatures bool
	WebhookBaseURL  string
	TTSCacheDir     string
	AllowAnyOrigin  bool
}

func New(cfg Config) *Server {
	s := &Server{
		turn:           cfg.Turn,
		store:          cfg.Store,
		bus:            cfg.Bus,
		metrics:        cfg.Metrics,
		qualityEng:     cfg.QualityEngine,
		llmBreaker:     cfg.LLMBreaker,
		ttsBreaker:     cfg.TTSBreaker,
		verifySigs:     cfg.VerifySignatures,
		webhookBase:    strings.TrimRight(cfg.WebhookBaseURL, "/"),
		ttsCacheDir:    cfg.TTSCacheDir,
		allowAnyOrigin: cfg.AllowAnyOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if cfg.CarrierAuthToken != "" {
		v := client.NewRequestValidator(cfg.CarrierAuthToken)
		s.validator = &v
	}
	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		if s.allowAnyOrigin {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/webhook/{call_id}", s.handleInbound)
	r.Post("/webhook/{call_id}/turn", s.handleTurn)
	r.Post("/webhook/{call_id}/status", s.handleStatus)
	r.Post("/webhook/{call_id}/recording", s.handleRecording)

	r.Get("/calls/{call_id}/tts/{filename}", s.handleTTSAudio)

	r.Get("/calls/quality/metrics", s.handleQualityMetrics)
	r.Get("/calls/{call_id}/transcript", s.handleTranscript)
	r.Get("/calls/circuit/status", s.handleCircuitStatus)

	r.Get("/ws/broadcast", s.handleBroadcastWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
