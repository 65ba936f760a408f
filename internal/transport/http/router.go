// Package httptransport is the protocol's HTTP surface. Handlers stay thin
// and delegate to the patient, trust and federation services.
package httptransport

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"match-gateway/internal/federation"
	"match-gateway/internal/patient"
	"match-gateway/internal/platform/metrics"
	"match-gateway/internal/platform/middleware"
	"match-gateway/internal/trust"
	dErrors "match-gateway/pkg/domain-errors"
	"match-gateway/pkg/platform/httputil"
)

// Matcher answers similarity queries over the patient index.
type Matcher interface {
	Match(ctx context.Context, record *patient.Record, limit int) (*patient.MatchResponse, error)
}

// Normalizer canonicalizes incoming patients.
type Normalizer interface {
	Normalize(ctx context.Context, p patient.Patient) (*patient.Record, error)
}

// ServerDirectory lists trust entries for the public /servers endpoint.
type ServerDirectory interface {
	List(ctx context.Context, direction trust.Direction) ([]trust.Entry, error)
}

// Fanout queries remote partners.
type Fanout interface {
	Fanout(ctx context.Context, req *patient.MatchRequest, targets []string, callTimeout time.Duration) ([]federation.Outcome, error)
}

// Handler holds the wired services behind the HTTP surface.
type Handler struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	matcher    Matcher
	normalizer Normalizer
	servers    ServerDirectory
	proxy      Fanout
	matchLimit int
}

// Config wires a Handler.
type Config struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Matcher    Matcher
	Normalizer Normalizer
	Servers    ServerDirectory
	Proxy      Fanout
	MatchLimit int
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		metrics:    cfg.Metrics,
		matcher:    cfg.Matcher,
		normalizer: cfg.Normalizer,
		servers:    cfg.Servers,
		proxy:      cfg.Proxy,
		matchLimit: cfg.MatchLimit,
	}
}

// NewRouter wires all endpoints. Protocol endpoints sit behind token auth
// and content negotiation; health, metrics and the server directory are
// open.
func NewRouter(h *Handler, verifier middleware.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(h.metrics))

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/servers", h.handleListServers)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(verifier, h.logger))
		r.Use(requireMediaType(h.logger))
		r.Post("/match", h.handleMatch)
		r.Post("/federation/match", h.handleFederatedMatch)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireMediaType enforces the protocol content type on request bodies.
// Plain application/json is accepted for local tooling.
func requireMediaType(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			parsed, _, err := mime.ParseMediaType(contentType)
			if err != nil || (parsed != patient.MediaType && parsed != "application/json") {
				logger.WarnContext(r.Context(), "unsupported media type",
					"request_id", middleware.GetRequestID(r.Context()),
					"content_type", contentType,
				)
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, map[string]string{
					"error":             string(dErrors.CodeBadRequest),
					"error_description": "expected content type " + patient.MediaType,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
