package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"

	"github.com/ent0n29/callbridge/internal/callrecord"
	"github.com/ent0n29/callbridge/internal/config"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/policy"
	"github.com/ent0n29/callbridge/internal/session"
)

const (
	serviceName    = "callbridge"
	serviceVersion = "1.0.0"

	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// CallLister exposes the live call table.
type CallLister interface {
	ActiveSessions() []session.Info
}

// RecordLister lists finished calls, oldest first.
type RecordLister interface {
	Recent(ctx context.Context, limit int) ([]callrecord.Record, error)
}

type Server struct {
	cfg       config.Config
	calls     CallLister
	records   RecordLister
	media     http.Handler
	metrics   *observability.Metrics
	logger    *zap.Logger
	redactor  policy.Redactor
	validator *client.RequestValidator
}

// New builds the HTTP surface. media serves the media stream websocket;
// records may be nil, in which case finished calls are not listed.
func New(cfg config.Config, calls CallLister, records RecordLister, media http.Handler, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		calls:    calls,
		records:  records,
		media:    media,
		metrics:  metrics,
		logger:   logger.Named("http"),
		redactor: policy.NewRedactor(cfg.LogRedactPII),
	}
	if cfg.TwilioAuthToken != "" {
		v := client.NewRequestValidator(cfg.TwilioAuthToken)
		s.validator = &v
	} else {
		s.logger.Warn("TWILIO_AUTH_TOKEN not set, webhook signature validation disabled")
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleServiceInfo)
	r.Get("/healthz", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/recent", s.handleRecentCalls)
	r.Get("/v1/stats/latency", s.handleLatency)

	r.Route("/twilio", func(r chi.Router) {
		r.Use(s.verifyTwilioSignature)
		r.Post("/webhook", s.handleWebhook)
		r.Post("/status", s.handleStatusCallback)
	})
	r.Get("/media-stream", s.media.ServeHTTP)

	return r
}

func (s *Server) handleServiceInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"health":       "/health",
			"webhook":      "/twilio/webhook",
			"status":       "/twilio/status",
			"media_stream": "/media-stream",
			"calls":        "/v1/calls",
			"recent_calls": "/v1/calls/recent",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"active_calls": len(s.calls.ActiveSessions()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.OpenAIAPIKey == "" {
		respondError(w, http.StatusServiceUnavailable, "not_configured", "realtime API key is not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ready",
		"signature_validation": s.validator != nil,
		"media_format_strict":  s.cfg.MediaFormatStrict,
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter, _ *http.Request) {
	calls := s.calls.ActiveSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(calls),
		"calls": calls,
	})
}

func (s *Server) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	if s.records == nil {
		respondError(w, http.StatusNotImplemented, "not_supported", "call records are not listable")
		return
	}

	records, err := s.records.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, callrecord.ErrRecentUnsupported) {
			respondError(w, http.StatusNotImplemented, "not_supported", "no configured call record backend can list records")
			return
		}
		s.logger.Error("list recent calls failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "records_unavailable", "could not list call records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
