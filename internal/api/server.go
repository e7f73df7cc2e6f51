package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/impact"
	"github.com/opencustomruler/ruler/internal/metrics"
	"github.com/opencustomruler/ruler/internal/rules"
)

// Server is the rule workbench HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer wires the routes. cache and bus may be nil.
func NewServer(cfg domain.ServerConfig, catalog *rules.Catalog, engine *rules.Engine, service *impact.Service, cache domain.ReportCache, bus domain.EventBus, version string) *Server {
	h := NewHandler(catalog, engine, service, cache, bus, version)

	router := chi.NewRouter()
	router.Use(
		CORSMiddleware,
		RecoverMiddleware,
		TracingMiddleware,
		LoggingMiddleware,
		metrics.Middleware,
		middleware.RealIP,
		middleware.Compress(5),
	)

	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(EditorMiddleware)
		if cfg.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
		}

		r.Get("/profile", h.Profile)
		r.Get("/fields", h.Fields)

		r.Post("/estimate", h.Estimate)
		r.Post("/dry-run", h.Sweep)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Route("/{id}", ruleRoutes(h))
		})
	})

	return &Server{
		router:  router,
		handler: h,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ruleRoutes serves one catalog rule: reads, edits, impact and dry-run.
func ruleRoutes(h *Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.GetRule)
		r.Delete("/", h.DeleteRule)
		r.Get("/summary", h.Summary)

		r.Post("/duplicate", h.DuplicateRule)
		r.Post("/toggle", h.ToggleRule)
		r.Put("/status", h.SetStatus)
		r.Patch("/action", h.UpdateAction)

		r.Post("/conditions", h.AddCondition)
		r.Patch("/conditions/{cid}", h.UpdateCondition)
		r.Delete("/conditions/{cid}", h.RemoveCondition)

		r.Get("/impact", h.Impact)
		r.Post("/dry-run", h.DryRun)
	}
}

// AttachWorker reports w in the health check. Call it before Start.
func (s *Server) AttachWorker(w WorkerStats) {
	s.handler.worker = w
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Router exposes the routes for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) Handler() *Handler {
	return s.handler
}
