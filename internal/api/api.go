// Package api is the HTTP control surface: request routing, workflow
// execution, action validation, compliance checks and audit queries.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentbus/agentbus/internal/audit"
	"github.com/agentbus/agentbus/internal/bus"
	"github.com/agentbus/agentbus/internal/compliance"
	"github.com/agentbus/agentbus/internal/registry"
	"github.com/agentbus/agentbus/internal/relevance"
)

type Server struct {
	router    *chi.Mux
	registry  *registry.Registry
	bus       *bus.Bus
	validator *relevance.Validator
	responses *relevance.ResponseValidator
	checker   *compliance.Checker
	store     audit.Store

	httpSrv *http.Server
}

func NewServer(reg *registry.Registry, b *bus.Bus, v *relevance.Validator, checker *compliance.Checker, store audit.Store) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		registry:  reg,
		bus:       b,
		validator: v,
		responses: relevance.NewResponseValidator(v),
		checker:   checker,
		store:     store,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", s.listAgents)
		r.Get("/agents/health", s.agentHealth)
		r.Delete("/agents/{agentID}", s.unregisterAgent)

		r.Post("/requests", s.routeRequest)

		r.Post("/workflows", s.executeWorkflow)
		r.Get("/workflows/{workflowID}", s.workflowState)

		r.Put("/orchestration-method", s.setOrchestrationMethod)

		r.Post("/actions/validate", s.validateAction)
		r.Post("/actions/validate-batch", s.validateBatch)
		r.Post("/actions/alternatives", s.suggestAlternatives)

		r.Post("/compliance/check", s.checkCompliance)

		r.Get("/audit/validations", s.auditValidations)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves the API on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
