// Package httpapi exposes the engine over HTTP. Handlers stay thin: decode,
// call a service, map sentinel errors onto OAuth-style JSON errors.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/janus/internal/authorize"
	"github.com/dropDatabas3/janus/internal/external"
	"github.com/dropDatabas3/janus/internal/identity"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/policy"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/token"
)

type Deps struct {
	Store     core.Store
	Sessions  session.Manager
	Authorize authorize.Service
	Tokens    token.Engine
	Policy    policy.Service
	Identity  identity.Service
	External  external.Service
}

type Server struct {
	deps Deps
	mux  *chi.Mux
}

func NewServer(d Deps) *Server {
	s := &Server{deps: d, mux: chi.NewRouter()}

	s.mux.Use(middleware.RealIP)
	s.mux.Use(middleware.RequestID)
	s.mux.Use(requestLogger)
	s.mux.Use(middleware.Recoverer)

	s.mux.Get("/healthz", s.healthz)
	s.mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	(&authHandler{deps: d}).Register(s.mux)
	(&oauthHandler{deps: d}).Register(s.mux)
	(&accountHandler{deps: d}).Register(s.mux)

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then drains for up to 10 seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	logger.L().Info("http server listening", logger.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
