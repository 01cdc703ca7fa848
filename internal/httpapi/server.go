// Package httpapi exposes the gate decision services over HTTP and streams
// live alerts to operator consoles over a websocket.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/service"
	"github.com/BrandonDHaskell/campusgate/internal/telemetry"
)

type Dependencies struct {
	Logger *slog.Logger
	Addr   string

	Access     *service.AccessService
	Visitors   *service.VisitorService
	Violations *service.ViolationService
	Vehicles   *service.VehicleService
	Gates      *service.GateRegistry

	// Hub feeds /v1/ws/alerts. A nil hub disables the stream.
	Hub              *broadcast.Hub
	AllowedOrigins   []string
	SubscriberBuffer int
	WriteTimeout     time.Duration

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health backs /healthz; nil always reports ok.
	Health func(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	access     *service.AccessService
	visitors   *service.VisitorService
	violations *service.ViolationService
	vehicles   *service.VehicleService
	gates      *service.GateRegistry

	hub            *broadcast.Hub
	allowedOrigins []string
	alertBuffer    int
	writeTimeout   time.Duration
	health         func(ctx context.Context) error
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:         logger.With("component", "httpapi"),
		access:         d.Access,
		visitors:       d.Visitors,
		violations:     d.Violations,
		vehicles:       d.Vehicles,
		gates:          d.Gates,
		hub:            d.Hub,
		allowedOrigins: d.AllowedOrigins,
		alertBuffer:    d.SubscriberBuffer,
		writeTimeout:   d.WriteTimeout,
		health:         d.Health,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 5 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	r.Use(telemetry.HTTPMiddleware("campusgate.http"))

	r.Get("/healthz", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scan/qr", s.handleScanQR)
		r.Post("/scan/face/verify", s.handleVerifyFace)

		r.Post("/visitors", requireActor(s.handleCreateVisitor))
		r.Get("/visitors", s.handleListVisitors)

		r.Get("/gates", s.handleListGates)

		r.Get("/violations", s.handleListViolations)
		r.Patch("/violations/{id}/resolve", requireActor(s.handleResolveViolation))

		r.Post("/vehicles", s.handleRegisterVehicle)
		r.Get("/vehicles", s.handleListVehicles)
		r.Post("/vehicles/entry", s.handleVehicleEntry)
		r.Post("/vehicles/exit", s.handleVehicleExit)
		r.Get("/vehicles/entries", s.handleListEntries)
		r.Get("/vehicles/alerts", s.handleListAlerts)
		r.Patch("/vehicles/alerts/{id}/resolve", requireActor(s.handleResolveAlert))

		r.Get("/ws/alerts", s.handleAlertStream)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
