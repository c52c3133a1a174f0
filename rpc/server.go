package rpc

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"escrowd/core/events"
	"escrowd/native/escrow"
	"escrowd/observability"
)

const (
	metricsModule      = "escrow"
	maxRequestBodySize = 1 << 16
)

// Config bundles the API knobs taken from the node configuration.
type Config struct {
	Auth            AuthConfig
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Server exposes the escrow engine over HTTP.
type Server struct {
	engine  *escrow.Engine
	stream  *events.Broadcaster
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	handler http.Handler
}

// NewServer builds the router. stream may be nil, in which case the websocket
// endpoint reports 503.
func NewServer(engine *escrow.Engine, stream *events.Broadcaster, cfg Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rpc: engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		stream:  stream,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		logger:  logger,
	}
	s.handler = otelhttp.NewHandler(s.routes(), "escrowd.api")
	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.auth.Middleware)
		v1.Use(s.limiter.Middleware)

		v1.Get("/status", s.handleStatus)
		v1.Get("/accounts/{address}", s.handleAccount)
		v1.Get("/events/stream", s.handleStream)

		v1.Route("/escrows", func(er chi.Router) {
			er.Post("/", s.handleCreate)
			er.Get("/{id}", s.handleGet)
			er.Post("/{id}/fund", s.handleFund)
			er.Post("/{id}/confirm", s.handleConfirm)
			er.Post("/{id}/release", s.handleRelease)
		})

		v1.Post("/admin/pause", s.handlePause)
		v1.Post("/admin/unpause", s.handleUnpause)
	})
	return r
}

// observe records request counts and latency per route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		method := r.Method
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				method = r.Method + " " + pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe(metricsModule, method, status, time.Since(start))
	})
}
