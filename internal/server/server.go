package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gatehouse-cms/gatehouse/internal/handler"
	"github.com/gatehouse-cms/gatehouse/internal/openapi"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
	"github.com/gatehouse-cms/gatehouse/internal/server/middleware"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// LoginRateLimit is the number of login attempts allowed per client IP
	// per minute. Zero disables the limiter.
	LoginRateLimit int
	// SecureCookies marks the session cookie Secure. Enable in production.
	SecureCookies bool
	Version       string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"http://localhost:3000"},
		LoginRateLimit:  20,
		SecureCookies:   true,
		Version:         "dev",
	}
}

// Server is the top-level HTTP server. It owns the Chi router and the
// authentication service every guarded route goes through.
type Server struct {
	cfg        Config
	router     chi.Router
	authSvc    *service.AuthService
	deny       middleware.Deny
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, authSvc *service.AuthService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		authSvc: authSvc,
		deny:    middleware.Denier(cfg.SecureCookies),
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", s.handleOpenAPI)

	// --- Admin API ---
	admin := handler.NewAdminHandler(s.authSvc, s.cfg.SecureCookies, s.logger)
	r.Route(openapi.APIPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.LoginRateLimit > 0 {
				r.Use(middleware.RateLimit(s.cfg.LoginRateLimit))
			}
			r.Post("/login", admin.Login)
		})

		// Self-service endpoints need only a valid session.
		r.Group(func(r chi.Router) {
			r.Use(s.Guard())

			r.Post("/logout", admin.Logout)
			r.Get("/status", admin.Status)
			r.Get("/profile", admin.GetProfile)
			r.Put("/profile", admin.UpdateProfile)
			r.Put("/change-password", admin.ChangePassword)

			r.Post("/mfa/setup", admin.SetupMFA)
			r.Post("/mfa/verify", admin.VerifyMFA)
			r.Post("/mfa/disable", admin.DisableMFA)

			r.Get("/login-history", admin.LoginHistory)
			r.Get("/activity-logs", admin.ActivityLogs)
		})

		// Hierarchy and account listing are Master Admin only.
		r.Group(func(r chi.Router) {
			r.Use(s.Guard(rbac.MasterAdmin))

			r.Get("/roles", admin.ListRoles)
			r.Get("/users", admin.ListUsers)
		})
	})

	s.router = r
}

// Guard returns the standard pipeline for protected routes: authenticate,
// then require one of roles (when given), then record the page access.
func (s *Server) Guard(roles ...string) func(http.Handler) http.Handler {
	guards := []middleware.Guard{middleware.Authenticate(s.authSvc)}
	if len(roles) > 0 {
		guards = append(guards, middleware.RequireRole(s.authSvc, roles...))
	}
	guards = append(guards, middleware.RecordAccess(s.authSvc))
	return middleware.Chain(s.deny, guards...)
}

// Mount attaches a collaborator's handler under the admin API. Requests
// reach h only after Authenticate, RequireRole(roles...) and RecordAccess
// have passed; the identity is available via middleware.GetIdentity.
func (s *Server) Mount(pattern string, h http.Handler, roles ...string) {
	s.router.With(s.Guard(roles...)).Mount(openapi.APIPrefix+pattern, h)
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the credential store
// answers a ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.authSvc.Store().Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	doc := openapi.GenerateAdminSpec(openapi.Options{
		BaseURL:     scheme + "://" + r.Host,
		Version:     s.cfg.Version,
		MasterRoles: s.authSvc.Hierarchy().AllowedRoles(rbac.MasterAdmin),
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
