// Package httpapi is the JSON request/response boundary over the
// activity validator, reservation engine, and cache manager, built on
// the stdlib's pattern-routing ServeMux with the Go 1.22+
// "METHOD /path/{param}" syntax for path parameters.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/activity"
	"github.com/thgg666/seckill-core/internal/cache"
	"github.com/thgg666/seckill-core/internal/hotstore"
	"github.com/thgg666/seckill-core/internal/ratelimit"
	"github.com/thgg666/seckill-core/internal/reservation"
)

// Config carries the HTTP Front's own settings, independent of the
// components it wires together.
type Config struct {
	Addr           string
	CORSOrigins    []string
	AdminAuthToken string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server owns the HTTP listener and every middleware-wrapped route. It
// holds references to the components it fronts, not their internals;
// Server is just another caller of cache.Manager, activity.Validator,
// and reservation.Engine.
type Server struct {
	cfg       Config
	store     hotstore.Client
	cache     *cache.Manager
	validator *activity.Validator
	engine    *reservation.Engine
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger
	httpSrv   *http.Server
}

func New(cfg Config, store hotstore.Client, cacheManager *cache.Manager, validator *activity.Validator, engine *reservation.Engine, limiter *ratelimit.Limiter, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		cache:     cacheManager,
		validator: validator,
		engine:    engine,
		limiter:   limiter,
		logger:    logger,
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/seckill/{activity_id}", chain(
		http.HandlerFunc(s.handleSeckill),
		withRateLimit(s.limiter),
	))
	mux.HandleFunc("GET /api/v1/seckill/stock/{activity_id}", s.handleStock)
	mux.HandleFunc("GET /api/v1/seckill/stocks", s.handleStocks)
	mux.Handle("POST /api/v1/seckill/rollback/{activity_id}", chain(
		http.HandlerFunc(s.handleRollback),
		withAuth(s.cfg.AdminAuthToken),
	))
	mux.Handle("GET /api/v1/admin/metrics/snapshot", chain(
		http.HandlerFunc(s.handleAdminMetricsSnapshot),
		withAuth(s.cfg.AdminAuthToken),
	))
	mux.Handle("GET /api/v1/admin/metrics/text", chain(
		http.HandlerFunc(s.handleAdminMetricsText),
		withAuth(s.cfg.AdminAuthToken),
	))
	mux.Handle("POST /api/v1/admin/metrics/reset", chain(
		http.HandlerFunc(s.handleAdminMetricsReset),
		withAuth(s.cfg.AdminAuthToken),
	))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ping", s.handlePing)

	return chain(mux,
		withRecovery(s.logger),
		withRequestID(),
		withAccessLog(s.logger),
		withCORS(s.cfg.CORSOrigins),
		withSecurityHeaders(),
		withMetricsObserver(),
	)
}

// Start runs the HTTP server until it is shut down. It never returns
// nil; callers distinguish a graceful shutdown by checking for
// http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP front listening")
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
