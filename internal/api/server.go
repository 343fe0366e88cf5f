package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/service"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *service.Service, repo domain.Repository, cache domain.Cache, version string) *Server {
	handler := NewHandler(svc, repo, cache, version)
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TenantIDHeader, RequestIDHeader, TraceIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, TraceIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	// Global middleware stack
	router.Use(corsHandler.Handler)    // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Reference catalog
		r.Get("/catalog", handler.ListCatalog)
		r.Put("/catalog/{name}", handler.SetCatalogProduct)

		// Stateless rule check
		r.Post("/rules/validate", handler.ValidateRule)

		// Calculation records
		r.Get("/calculations/{id}", handler.GetCalculation)

		r.Get("/doctors", handler.ListDoctors)
		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/", handler.GetDoctor)
			r.Delete("/", handler.DeleteDoctor)
			r.Put("/base-rule", handler.SetBaseRule)
			r.Get("/validation", handler.Validate)

			// Exceptions
			r.Post("/exceptions", handler.AddException)
			r.Put("/exceptions", handler.ImportExceptions)
			r.Post("/exceptions/merge", handler.MergeExceptions)
			r.Patch("/exceptions/{id}", handler.UpdateException)
			r.Delete("/exceptions/{id}", handler.RemoveException)

			// Product costs
			r.Post("/product-costs", handler.AddProductCost)
			r.Delete("/product-costs", handler.RemoveProductCostByName)
			r.Post("/product-costs/import/preview", handler.PrepareCostImport)
			r.Post("/product-costs/import/confirm", handler.ConfirmCostImport)
			r.Patch("/product-costs/{id}", handler.UpdateProductCost)
			r.Delete("/product-costs/{id}", handler.RemoveProductCost)

			// Calculations
			r.Post("/calculate", handler.Calculate)
			r.Post("/calculate/batch", handler.CalculateBatch)
			r.Post("/scenarios", handler.AnalyzeScenarios)
		})
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
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
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

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
