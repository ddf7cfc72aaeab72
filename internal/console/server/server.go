package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-orchestrator/internal/console/handler"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra/auth"
	"go.uber.org/zap"
)

// Права операторов (claims.Scopes).
const (
	ScopeApprovalsDecide = "approvals:decide"
	ScopeAgentsBlock     = "agents:block"
	ScopeWorkflowsWrite  = "workflows:write"
)

// Handlers: обработчики бизнес-доменов консоли.
type Handlers struct {
	Sessions  *handler.SessionHandler   // /v1/sessions
	Approvals *handler.ApprovalHandler  // /v1/approvals (HITL)
	Workflows *handler.WorkflowHandler  // /v1/workflows
	Agents    *handler.AgentHandler     // /v1/agents (kill-switch)
	Audit     *handler.AuditHandler     // /v1/events, /v1/sentinel/audit
	Dashboard *handler.DashboardHandler // /v1/dashboard
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// nil: авторизация выключена конфигом
	authValidator auth.TokenValidator
	h             Handlers
}

func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, h Handlers) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		h:             h,
	}
	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Get("/v1/dashboard", s.h.Dashboard.GetStats)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/", s.h.Sessions.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/turns", s.h.Sessions.Turn)
				r.Get("/history", s.h.Sessions.History)
				r.Get("/workflow", s.h.Sessions.WorkflowState)
				r.Post("/workflow", s.h.Sessions.StartWorkflow)
				r.Post("/workflow/next", s.h.Sessions.NextStep)
			})
		})

		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.h.Approvals.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Approvals.GetDetails)
				r.With(auth.RequireScope(ScopeApprovalsDecide)).Post("/decide", s.h.Approvals.Decide)
			})
		})

		r.Route("/v1/workflows", func(r chi.Router) {
			r.Get("/", s.h.Workflows.List)
			r.With(auth.RequireScope(ScopeWorkflowsWrite)).Post("/", s.h.Workflows.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Workflows.Get)
				r.With(auth.RequireScope(ScopeWorkflowsWrite)).Put("/", s.h.Workflows.Update)
				r.With(auth.RequireScope(ScopeWorkflowsWrite)).Post("/publish", s.h.Workflows.Publish)
			})
		})

		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/blocked", s.h.Agents.Blocked)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(ScopeAgentsBlock))
				r.Post("/{id}/block", s.h.Agents.Block)
				r.Post("/{id}/unblock", s.h.Agents.Unblock)
			})
		})

		r.Get("/v1/events", s.h.Audit.GetLogs)
		r.Post("/v1/sentinel/audit", s.h.Audit.Audit)
	})
}

func (s *ConsoleServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
