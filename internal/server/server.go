package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/handler"
	"github.com/dukerupert/crm/internal/metrics"
	"github.com/dukerupert/crm/internal/middleware"
	"github.com/dukerupert/crm/internal/scheduler"
	ws "github.com/dukerupert/crm/internal/websocket"
)

const (
	// Manual creates and restores allowed per client per window.
	backupWriteLimit  = 6
	backupWriteWindow = time.Minute
)

// Options holds the HTTP surface settings.
type Options struct {
	APIToken       string
	AllowedOrigins []string
	MetricsEnabled bool
	Location       *time.Location
}

type Server struct {
	handle      *database.Handle
	hub         *ws.Hub
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(handle *database.Handle, mgr *backup.Manager, auto *scheduler.Adapter, hub *ws.Hub, opts Options, logger *slog.Logger) *Server {
	return &Server{
		handle:      handle,
		hub:         hub,
		backupH:     handler.NewBackupHandler(mgr, auto, opts.Location, logger.With("component", "backup_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		opts:        opts,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.opts.AllowedOrigins, s.logger.With("component", "websocket")))
	if s.opts.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	api := http.NewServeMux()
	s.registerBackupRoutes(api)
	mux.Handle("/api/", middleware.RequireToken(s.opts.APIToken)(api))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) registerBackupRoutes(mux *http.ServeMux) {
	limited := middleware.RateLimit(s.rateLimiter, backupWriteLimit, backupWriteWindow)

	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.Handle("POST /api/backups", limited(http.HandlerFunc(s.backupH.Create)))
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/locations", s.backupH.Locations)
	mux.HandleFunc("PUT /api/backups/auto", s.backupH.SetAuto)
	mux.HandleFunc("DELETE /api/backups/{name}", s.backupH.Delete)
	mux.Handle("POST /api/backups/{name}/restore", limited(http.HandlerFunc(s.backupH.Restore)))
}

// healthHandler reports 503 while the database is closed for a restore.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	db, err := s.handle.DB()
	if err == nil {
		err = db.PingContext(r.Context())
	}
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}
