// Package server assembles the HTTP router and owns the listener lifecycle.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authhandler "traffic-monitor/backend/internal/auth/handler"
)

// Options configures the router.
type Options struct {
	AuthHandler    *authhandler.Handler
	DB             *sql.DB // readiness probe; may be nil
	Logger         *slog.Logger
	AuthRateLimit  int // requests per window per IP on signup/signin; <= 0 disables
	AuthRateWindow time.Duration
	RequestTimeout time.Duration // per-request deadline; <= 0 means 15s
}

// NewRouter builds the full route tree: health probes, metrics, and the auth API.
func NewRouter(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(otelhttp.NewMiddleware("auth-api"))
	r.Use(Recover(opts.Logger))
	r.Use(Logging(opts.Logger))
	r.Use(Timeout(opts.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.DB != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := opts.DB.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if opts.AuthHandler != nil {
		var limiter func(http.Handler) http.Handler
		if opts.AuthRateLimit > 0 {
			limiter = NewRateLimiter(opts.AuthRateLimit, opts.AuthRateWindow).Middleware
		}
		opts.AuthHandler.Mount(r, limiter)
	}

	return r
}

// Server wraps http.Server with context-driven graceful shutdown.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New returns a Server listening on addr with the given handler.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server draining")
	return s.srv.Shutdown(shutdownCtx)
}
