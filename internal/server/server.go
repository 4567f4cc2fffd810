// Package server exposes the distribution and reward token API over
// net/http, plus the websocket event feed and prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/server/handler"
	"github.com/alanyoungcy/yieldengine/internal/server/middleware"
	"github.com/alanyoungcy/yieldengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables admin authentication
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
	MetricsPath string // empty disables the metrics endpoint
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health       *handler.HealthHandler
	Distribution *handler.DistributionHandler
	WBC          *handler.WBCHandler
}

// Deps are the optional collaborators of the server. Nil fields switch the
// matching feature off.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	Metrics http.Handler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()
	admin := middleware.Auth(cfg.APIKey, logger)
	protect := func(h http.HandlerFunc) http.Handler { return admin(h) }

	// Public.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/distribution/status", handlers.Distribution.Status)
	mux.HandleFunc("GET /api/distribution/pools", handlers.Distribution.Pools)
	mux.HandleFunc("GET /api/wbc/config", handlers.WBC.GetConfig)
	mux.HandleFunc("GET /api/wbc/balance/{wallet}", handlers.WBC.Balance)
	mux.HandleFunc("GET /api/wbc/stats", handlers.WBC.Stats)
	mux.HandleFunc("POST /api/wbc/validate/collect-fees", handlers.WBC.ValidateCollectFees)
	mux.HandleFunc("POST /api/wbc/validate/close-position", handlers.WBC.ValidateClosePosition)

	// Admin.
	mux.Handle("GET /api/distribution/preview", protect(handlers.Distribution.Preview))
	mux.Handle("POST /api/distribution/execute", protect(handlers.Distribution.Execute))
	mux.Handle("GET /api/distribution/runs", protect(handlers.Distribution.Runs))
	mux.Handle("GET /api/distribution/runs/{id}", protect(handlers.Distribution.Run))
	mux.Handle("POST /api/distribution/cron/{action}", protect(handlers.Distribution.Cron))
	mux.Handle("PUT /api/distribution/adjustments/{days}", protect(handlers.Distribution.SetAdjustment))
	mux.Handle("POST /api/distribution/pools", protect(handlers.Distribution.RegisterPool))
	mux.Handle("PUT /api/distribution/pools/{address}", protect(handlers.Distribution.SetPoolActive))
	mux.Handle("PUT /api/wbc/config", protect(handlers.WBC.UpdateConfig))
	mux.Handle("POST /api/wbc/activate", protect(handlers.WBC.Activate))
	mux.Handle("POST /api/wbc/deactivate", protect(handlers.WBC.Deactivate))
	mux.Handle("POST /api/wbc/contract", protect(handlers.WBC.SetContract))
	mux.Handle("GET /api/wbc/transactions", protect(handlers.WBC.Transactions))
	mux.Handle("POST /api/wbc/returns", protect(handlers.WBC.RecordReturn))
	mux.Handle("POST /api/wbc/rewards/activation", protect(handlers.WBC.ActivationReward))

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, deps.Metrics)
	}

	var h http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// A manual run with reward sends can take minutes.
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
