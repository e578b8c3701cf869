package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/sentinela/internal/assessment"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/metrics"
	"github.com/opensource-finance/sentinela/internal/rules"
	"github.com/opensource-finance/sentinela/internal/worker"
)

// Dependencies are the collaborators served over HTTP. Repo, Cache, Bus and
// Metrics may be nil; the affected endpoints then report 503 or skip the step.
type Dependencies struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Registry *rules.Registry
	Worker   *worker.Worker
	Store    *assessment.Store
	Metrics  *metrics.Registry

	// ConfigRules are rule overrides from the configuration file. Reloads
	// apply them before the dataset's stored rules.
	ConfigRules []domain.RuleConfig

	Version        string
	DefaultDataset string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// No dataset required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Get("/methodology", handler.Methodology)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(DatasetMiddleware(deps.DefaultDataset))

		// Ledger ingestion
		r.Post("/expenses", handler.IngestExpenses)
		r.Post("/expenses/import", handler.ImportCSV)

		// Assessment runs
		r.Post("/assessments", handler.RunAssessment)
		r.Get("/assessments/latest", handler.LatestAssessment)
		r.Get("/assessments/{id}", handler.GetAssessment)

		// Reads against the current assessment
		r.Get("/entities", handler.ListEntities)
		r.Get("/entities/{id}", handler.GetEntity)
		r.Get("/correlations", handler.Correlations)
		r.Get("/aggregations", handler.Aggregations)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
