package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskqueue/core/internal/api/handlers"
	apiMiddleware "github.com/taskqueue/core/internal/api/middleware"
	"github.com/taskqueue/core/internal/api/websocket"
	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/events"
)

// Server is the HTTP/WS boundary: a thin layer translating requests into
// broker calls, never holding durable state of its own.
type Server struct {
	router       *chi.Mux
	broker       *broker.Broker
	bus          *events.Bus
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
}

// NewServer creates a new HTTP server bound to br, fanning events out
// through bus to the websocket dashboard feed.
func NewServer(cfg *config.Config, br *broker.Broker, bus *events.Bus) *Server {
	wsHub := websocket.NewHub(bus)

	s := &Server{
		router:       chi.NewRouter(),
		broker:       br,
		bus:          bus,
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(br, 0),
		adminHandler: handlers.NewAdminHandler(br),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))

	if s.config.Auth.Enabled {
		apiKeys := make(map[string]bool, len(s.config.Auth.APIKeys))
		for _, k := range s.config.Auth.APIKeys {
			apiKeys[k] = true
		}
		authCfg := &apiMiddleware.AuthConfig{
			Enabled:   true,
			JWTSecret: s.config.Auth.JWTSecret,
			APIKeys:   apiKeys,
		}
		s.router.Use(apiMiddleware.Auth(authCfg))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Delete("/{taskID}", s.taskHandler.Cancel)
			r.Post("/{taskID}/retry", s.taskHandler.Retry)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.taskHandler.ListQueues)
			r.Get("/{queue}/stats", s.taskHandler.QueueStats)
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		if s.config.Auth.Enabled {
			r.Use(apiMiddleware.RequireRole("admin"))
		}

		r.Get("/health", s.adminHandler.HealthCheck)

		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)
		r.Post("/workers/{workerID}/pause", s.adminHandler.PauseWorker)
		r.Post("/workers/{workerID}/resume", s.adminHandler.ResumeWorker)

		r.Get("/queues", s.adminHandler.GetQueues)
		r.Post("/queues/{queue}/pause", s.adminHandler.PauseQueue)
		r.Post("/queues/{queue}/resume", s.adminHandler.ResumeQueue)
		r.Delete("/queues/{queue}", s.adminHandler.PurgeQueue)

		r.Post("/tasks/{taskID}/retry", s.adminHandler.RetryTask)

		r.Get("/queues/{queue}/dlq", s.adminHandler.ListDLQ)
		r.Post("/queues/{queue}/dlq/retry", s.adminHandler.RetryDLQ)
		r.Delete("/queues/{queue}/dlq", s.adminHandler.ClearDLQ)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
