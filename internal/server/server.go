// Package server assembles the HTTP API: routes, middleware and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/server/handler"
	"github.com/alanyoungcy/convictionmarket/internal/server/middleware"
	"github.com/alanyoungcy/convictionmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// MaxSkew bounds the age of a signed request.
	MaxSkew time.Duration
	// RateLimit requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Positions   *handler.PositionHandler
	Predictions *handler.PredictionHandler
	Admin       *handler.AdminHandler
}

// Extras are the optional collaborators of the server. Any may be nil.
type Extras struct {
	Hub      *ws.Hub
	Metrics  http.Handler
	Observer middleware.Observer
	Limiter  domain.RateLimiter
	Replay   domain.LockManager
	// Owner returns the current owner address for admin routes.
	Owner func() common.Address
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered. Reads are open;
// mutations require a signed request and admin mutations the owner.
func NewServer(cfg Config, h Handlers, x Extras, logger *slog.Logger) *Server {
	mux := NewMux(cfg, h, x, logger)

	var root http.Handler = mux
	if x.Limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(x.Limiter, cfg.RateLimit, cfg.RateWindow)(root)
	}
	root = middleware.Logging(logger, x.Observer)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewMux registers the routes without the outer middleware.
func NewMux(cfg Config, h Handlers, x Extras, logger *slog.Logger) *http.ServeMux {
	signed := middleware.SignatureAuth(middleware.AuthConfig{
		MaxSkew: cfg.MaxSkew,
		Replay:  x.Replay,
		Logger:  logger,
	})
	owner := x.Owner
	if owner == nil {
		owner = func() common.Address { return common.Address{} }
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return signed(middleware.RequireOwner(owner)(fn))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	if x.Metrics != nil {
		mux.Handle("GET /metrics", x.Metrics)
	}
	if x.Hub != nil {
		mux.HandleFunc("GET /ws", x.Hub.HandleWS)
	}

	mux.HandleFunc("GET /api/markets", h.Markets.ListActive)
	mux.HandleFunc("GET /api/markets/count", h.Markets.Count)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.Get)
	mux.HandleFunc("GET /api/markets/{id}/expired", h.Markets.Expired)
	mux.HandleFunc("GET /api/markets/{id}/participants/{address}", h.Markets.Participant)
	mux.HandleFunc("GET /api/markets/{id}/positions", h.Markets.Positions)
	mux.HandleFunc("GET /api/fees/quote", h.Markets.QuoteFee)

	mux.HandleFunc("GET /api/positions/{id}", h.Positions.Get)
	mux.HandleFunc("GET /api/positions/{id}/preview", h.Positions.Preview)
	mux.HandleFunc("GET /api/accounts/{address}/positions", h.Positions.ByOwner)
	mux.Handle("POST /api/positions/{id}/claim", signed(http.HandlerFunc(h.Positions.Claim)))
	mux.Handle("POST /api/positions/{id}/transfer", signed(http.HandlerFunc(h.Positions.Transfer)))

	mux.Handle("POST /api/predictions", signed(http.HandlerFunc(h.Predictions.Create)))

	mux.Handle("POST /api/admin/markets", admin(h.Admin.CreateMarket))
	mux.Handle("POST /api/admin/markets/{id}/oracle", admin(h.Admin.RegisterOracle))
	mux.Handle("POST /api/admin/markets/{id}/min-stake", admin(h.Admin.SetMinStake))
	mux.Handle("POST /api/admin/markets/{id}/resolve", admin(h.Admin.Resolve))
	mux.Handle("PUT /api/admin/settings", admin(h.Admin.UpdateSettings))
	mux.HandleFunc("GET /api/admin/settings", h.Admin.GetSettings)

	return mux
}

// Start begins listening. It blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Run starts the server and shuts it down when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
