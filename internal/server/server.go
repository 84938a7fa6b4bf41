// Package server provides the HTTP server and routing for Tradebook.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tradebook/internal/clients/finnhub"
	"github.com/aristath/tradebook/internal/database"
	"github.com/aristath/tradebook/internal/modules/ledger"
	"github.com/aristath/tradebook/internal/modules/pricing"
	"github.com/aristath/tradebook/internal/modules/watchlist"
)

// Config holds server configuration
type Config struct {
	Port            int
	DevMode         bool
	StartingBalance float64
	Log             zerolog.Logger
	LedgerDB        *database.DB
	CacheDB         *database.DB
	Repo            *ledger.Repository
	Executor        *ledger.Executor
	WatchlistRepo   *watchlist.Repository
	PriceCache      *pricing.Cache
	Quotes          pricing.QuoteFetcher
	Stream          *finnhub.StreamSupervisor
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		handlers: NewHandlers(
			cfg.Repo,
			cfg.Executor,
			cfg.WatchlistRepo,
			cfg.PriceCache,
			cfg.Quotes,
			cfg.Stream,
			cfg.StartingBalance,
			cfg.Log,
		),
		systemHandlers: NewSystemHandlers(cfg.LedgerDB, cfg.CacheDB, cfg.Stream, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes wires the API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/accounts", s.handlers.HandleCreateAccount)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/", s.handlers.HandleGetAccountState)
			r.Post("/trade", s.handlers.HandleTrade)
			r.Post("/funds", s.handlers.HandleFunds)
			r.Get("/orders", s.handlers.HandleGetOrders)
			r.Get("/transactions", s.handlers.HandleGetTransactions)
			r.Get("/watchlist", s.handlers.HandleGetWatchlist)
			r.Post("/watchlist", s.handlers.HandleAddWatchlist)
			r.Delete("/watchlist/{symbol}", s.handlers.HandleRemoveWatchlist)
		})

		r.Get("/quotes/{symbol}", s.handlers.HandleGetQuote)
		r.Get("/system/health", s.systemHandlers.HandleHealth)
	})
}

// loggingMiddleware logs each request with zerolog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
