package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/handlers"
	"github.com/anyclaw/anyclaw/internal/metrics"
	mw "github.com/anyclaw/anyclaw/internal/middleware"
	"github.com/anyclaw/anyclaw/internal/templates"
	ws "github.com/anyclaw/anyclaw/internal/websocket"
)

// Orchestrator is everything the HTTP surface needs from the gateway layer.
type Orchestrator interface {
	handlers.GatewayService
	handlers.Provisioner
}

type Server struct {
	Router *chi.Mux
	DB     *database.DB
	Auth   *auth.Service
	WSHub  *ws.Hub
}

type Config struct {
	DB           *database.DB
	Auth         *auth.Service
	OTPs         *auth.OTPs
	Hub          *ws.Hub
	Orchestrator Orchestrator
	Runtime      handlers.RuntimeReader
	Templates    *templates.Catalog
	Metrics      *metrics.Metrics
	AccessHash   string
	Origins      []string
	DevMode      bool
}

func New(cfg Config) *Server {
	s := &Server{
		Router: chi.NewRouter(),
		DB:     cfg.DB,
		Auth:   cfg.Auth,
		WSHub:  cfg.Hub,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(cfg)

	return s
}

func (s *Server) setupMiddleware(cfg Config) {
	s.Router.Use(chiMiddleware.RealIP)
	s.Router.Use(mw.RequestID)
	s.Router.Use(mw.SecurityHeaders)
	s.Router.Use(mw.Logger(cfg.Metrics))
	s.Router.Use(mw.CORS(cfg.Origins...))
	s.Router.Use(chiMiddleware.Recoverer)
}

func (s *Server) setupRoutes(cfg Config) {
	authHandler := handlers.NewAuthHandler(s.DB, s.Auth, cfg.OTPs, cfg.DevMode)
	agentsHandler := handlers.NewAgentsHandler(s.DB, cfg.Templates, cfg.Orchestrator)
	usageHandler := handlers.NewUsageHandler(s.DB, agentsHandler)
	gatewaysHandler := handlers.NewGatewaysHandler(s.DB, cfg.Orchestrator)
	systemHandler := handlers.NewSystemHandler(s.DB, cfg.Runtime)
	auditHandler := handlers.NewAuditHandler(s.DB)

	// Scraped by the local Prometheus, so it sits outside the access gate.
	s.Router.Handle("/metrics", cfg.Metrics.Handler())
	s.Router.Get("/api/v1/health", systemHandler.Health)

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.AccessGate(cfg.AccessHash))

		r.Route("/auth", func(r chi.Router) {
			r.With(mw.RateLimit(5, time.Minute)).Post("/login", authHandler.Login)
			r.With(mw.RateLimit(10, time.Minute)).Post("/verify", authHandler.Verify)
		})

		// Usage webhook from the runtime, which holds no session.
		r.Post("/agents/{id}/usage", usageHandler.Record)

		// WebSocket (auth handled internally)
		r.Get("/ws", s.WSHub.HandleWS)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.Auth))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Get("/templates", agentsHandler.Templates)

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", agentsHandler.List)
				r.Post("/", agentsHandler.Create)
				r.Get("/{id}", agentsHandler.Get)
				r.Patch("/{id}", agentsHandler.Patch)
				r.Post("/{id}/provision", agentsHandler.Provision)
				r.Get("/{id}/usage", usageHandler.Get)
			})

			r.Route("/gateways", func(r chi.Router) {
				r.Get("/", gatewaysHandler.List)
				r.Post("/", gatewaysHandler.Create)
				r.Get("/{id}", gatewaysHandler.Get)
				r.Delete("/{id}", gatewaysHandler.Delete)
				r.Post("/{id}/start", gatewaysHandler.Start)
				r.Get("/{id}/qr", gatewaysHandler.QR)
				r.Get("/{id}/qr.png", gatewaysHandler.QRImage)
			})

			r.Get("/audit", auditHandler.List)
			r.Get("/system/info", systemHandler.Info)
			r.Get("/system/runtime", systemHandler.Runtime)
		})
	})

	s.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
