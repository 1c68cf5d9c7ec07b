// Package api serves the settler's operator HTTP interface: settlement
// previews and triggers, round lookup, ticket generation and health.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/metrics"
	"github.com/lamas-finance/round-settler/internal/scheduler"
	"github.com/lamas-finance/round-settler/internal/settle"
	"github.com/lamas-finance/round-settler/internal/store"
)

// RunStore reads the settlement journal.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, query store.RunsQuery) (*store.RunsList, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the server's collaborators. Settler is required; the rest
// are optional and their endpoints report unavailable when unset.
type Options struct {
	Settler   *settle.Settler
	Runs      RunStore
	DB        Pinger
	Mirror    Mirror
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger

	// IngestToken is required in X-Ingest-Token when set.
	IngestToken string

	// Ticket generation defaults.
	LotteryMaxNumber int
	LotteryTicketLen int

	// RequestTimeout bounds each request. Zero means 60s.
	RequestTimeout time.Duration
}

// Server handles HTTP requests
type Server struct {
	settler      *settle.Settler
	runs         RunStore
	db           Pinger
	mirror       Mirror
	ingestToken  string
	metrics      *metrics.Metrics
	scheduler    *scheduler.Scheduler
	errorHandler *ErrorHandler
	logger       *zap.Logger
	maxNumber    int
	ticketLen    int
	timeout      time.Duration
	startTime    time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	s := &Server{
		settler:      opts.Settler,
		runs:         opts.Runs,
		db:           opts.DB,
		mirror:       opts.Mirror,
		ingestToken:  opts.IngestToken,
		metrics:      opts.Metrics,
		scheduler:    opts.Scheduler,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		maxNumber:    opts.LotteryMaxNumber,
		ticketLen:    opts.LotteryTicketLen,
		timeout:      opts.RequestTimeout,
		startTime:    time.Now(),
	}
	if s.maxNumber == 0 {
		s.maxNumber = 36
	}
	if s.ticketLen == 0 {
		s.ticketLen = 4
	}
	if s.timeout == 0 {
		s.timeout = 60 * time.Second
	}

	logger.Info("api server created",
		zap.Int("games_available", len(s.settler.Registry().List())),
		zap.Bool("database_enabled", s.db != nil),
		zap.Bool("dry_run", s.settler.Dry()))
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metrics.Instrument)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.CORSMiddleware)

	// Health and monitoring endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Get("/games/lucky-spinner/table", s.handleSpinnerTable)
		r.Post("/games/lucky-spinner/replay", s.handleSpinReplay)
		r.Get("/games/up-or-down/rounds/{id}/claims", s.handleClaims)
		r.Route("/games/{game}", func(r chi.Router) {
			r.Get("/rounds/find", s.handleFindRound)
			r.Get("/plan", s.handlePlan)
			r.Post("/settle", s.handleSettle)
			r.Get("/maintenance", s.handleMaintenance)
			r.Get("/ops/{op}", s.handleOpPlan)
			r.Post("/ops/{op}", s.handleOpRun)
		})
		r.Post("/tickets/generate", s.handleGenerateTickets)
		r.Post("/ingest/{game}", s.handleIngest)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/export.csv", s.handleExportRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/schedules", s.handleSchedules)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Settler-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
