// Package server sets up the HTTP router, route table and the listener.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// main.go builds the dependency graph (config → DB → services → handlers).
// This package only arranges the finished handlers into routes, so tests
// can build a full router around an in-memory database without a listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/handler"
	"github.com/sakif/codevault/internal/middleware"
)

// Config holds listener and routing options.
type Config struct {
	Port               int
	StaticDir          string
	CORSOrigins        []string
	LoginRatePerMinute int
	// TrustedProxies are the reverse proxies whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means none.
	TrustedProxies []netip.Prefix
}

// Pinger reports whether the backing store is reachable. *sqlite.DB
// implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers are the finished HTTP handlers built by main.
type Handlers struct {
	Auth     *handler.AuthHandler
	Snippets *handler.SnippetHandler
	Execute  *handler.ExecuteHandler
	Organize *handler.OrganizeHandler
	Teams    *handler.TeamHandler
	Admin    *handler.AdminHandler
	Migrate  *handler.MigrateHandler
}

// Server represents the HTTP server and its router.
type Server struct {
	router chi.Router
	config Config
	logger *slog.Logger
}

// New builds the router. authn turns the session cookie into a user; db is
// probed by /healthz.
func New(cfg Config, h Handlers, authn *auth.Authenticator, db Pinger, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(h, authn, db)
	return s
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
//  1. RequestID: unique id per request, echoed in the access log
//  2. RealIP: rewrites RemoteAddr from X-Forwarded-For / X-Real-IP when the
//     request came through a trusted proxy, so the rate limiter and audit
//     log see the client, not the proxy
//  3. Logger: one structured line per request
//  4. Recoverer: a panic becomes a 500 instead of killing the process
//
// AUTH GROUPS:
// OptionalAuth routes are readable anonymously (public snippets, public
// categories). RequireAuth routes need a session. The admin subtree adds
// RequireAdmin on top.
func (s *Server) setupRoutes(h Handlers, authn *auth.Authenticator, db Pinger) {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RealIP(s.config.TrustedProxies))
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/auth/github/login", h.Auth.HandleGitHubLogin)
	r.Get("/auth/github/callback", h.Auth.HandleGitHubCallback)

	limiter := middleware.NewRateLimiter(s.config.LoginRatePerMinute)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/auth/register", h.Auth.HandleRegister)
			r.Post("/auth/login", h.Auth.HandleLogin)
		})
		r.Post("/auth/logout", h.Auth.HandleLogout)
		r.Get("/settings/public", h.Admin.HandlePublicSettings)

		// Anonymous readers see PUBLIC + APPROVED snippets.
		r.Group(func(r chi.Router) {
			r.Use(authn.OptionalAuth)
			r.Get("/snippets", h.Snippets.HandleList)
			r.Get("/snippets/{id}", h.Snippets.HandleGet)
			r.Get("/snippets/{id}/versions", h.Snippets.HandleListVersions)
			r.Get("/snippets/{id}/versions/{versionID}", h.Snippets.HandleGetVersion)
			r.Get("/snippets/{id}/diff", h.Snippets.HandleDiff)
			r.Get("/categories", h.Organize.HandleListCategories)
			r.Get("/tags", h.Organize.HandleListTags)
			r.Get("/languages", h.Execute.HandleLanguages)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth)

			r.Get("/auth/me", h.Auth.HandleMe)
			r.Put("/auth/password", h.Auth.HandleChangePassword)
			r.Put("/auth/profile", h.Auth.HandleUpdateProfile)
			r.Put("/auth/integrations", h.Auth.HandleUpdateIntegrations)

			// Static segments are registered before {id}; chi matches
			// them first either way.
			r.Get("/snippets/export", h.Snippets.HandleExport)
			r.Post("/snippets/import", h.Snippets.HandleImport)
			r.Post("/snippets/bulk", h.Snippets.HandleBulk)
			r.Post("/snippets", h.Snippets.HandleCreate)
			r.Put("/snippets/{id}", h.Snippets.HandleUpdate)
			r.Delete("/snippets/{id}", h.Snippets.HandleDelete)
			r.Post("/snippets/{id}/favorite", h.Snippets.HandleToggleFavorite)
			r.Post("/snippets/{id}/versions/{versionID}/restore", h.Snippets.HandleRestore)
			r.Post("/snippets/{id}/publish", h.Snippets.HandlePublish)
			r.Post("/snippets/{id}/run", h.Snippets.HandleRun)
			r.Post("/execute", h.Execute.HandleExecute)

			r.Get("/folders", h.Organize.HandleListFolders)
			r.Post("/folders", h.Organize.HandleCreateFolder)
			r.Put("/folders/{id}", h.Organize.HandleUpdateFolder)
			r.Delete("/folders/{id}", h.Organize.HandleDeleteFolder)

			r.Post("/categories", h.Organize.HandleCreateCategory)
			r.Put("/categories/{id}", h.Organize.HandleUpdateCategory)
			r.Delete("/categories/{id}", h.Organize.HandleDeleteCategory)
			r.Delete("/tags/{id}", h.Organize.HandleDeleteTag)

			r.Get("/teams", h.Teams.HandleList)
			r.Post("/teams", h.Teams.HandleCreate)
			r.Get("/teams/{id}", h.Teams.HandleGet)
			r.Put("/teams/{id}", h.Teams.HandleUpdate)
			r.Delete("/teams/{id}", h.Teams.HandleDelete)
			r.Post("/teams/{id}/members", h.Teams.HandleAddMember)
			r.Delete("/teams/{id}/members/{userID}", h.Teams.HandleRemoveMember)

			r.Route("/admin", func(r chi.Router) {
				r.Use(authn.RequireAdmin)

				r.Get("/dashboard", h.Admin.HandleDashboard)
				r.Get("/license", h.Admin.HandleLicense)

				r.Get("/users", h.Admin.HandleListUsers)
				r.Post("/users", h.Admin.HandleCreateUser)
				r.Get("/users/{id}", h.Admin.HandleGetUser)
				r.Patch("/users/{id}", h.Admin.HandleUpdateUser)
				r.Delete("/users/{id}", h.Admin.HandleDeleteUser)

				r.Get("/approvals", h.Admin.HandlePending)
				r.Post("/approvals/{id}/approve", h.Admin.HandleApprove)
				r.Post("/approvals/{id}/reject", h.Admin.HandleReject)

				r.Get("/settings", h.Admin.HandleGetSettings)
				r.Put("/settings", h.Admin.HandleUpdateSettings)

				r.Get("/templates", h.Admin.HandleListTemplates)
				r.Post("/templates/test", h.Admin.HandleSendTestMail)
				r.Get("/templates/{key}", h.Admin.HandleGetTemplate)
				r.Put("/templates/{key}", h.Admin.HandleUpsertTemplate)
				r.Delete("/templates/{key}", h.Admin.HandleResetTemplate)
				r.Post("/templates/{key}/preview", h.Admin.HandlePreviewTemplate)

				r.Get("/audit", h.Admin.HandleListAudit)
				r.Post("/audit/purge", h.Admin.HandlePurgeAudit)

				r.Post("/tags/cleanup", h.Organize.HandleCleanupTags)
				r.Post("/migrate", h.Migrate.HandleMigrate)
			})
		})
	})

	// === Static Files ===
	// When STATIC_DIR is set the built client is served from it; every
	// other path falls through to the file server.
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//
// The migration stream clears its own write deadline, so WriteTimeout can
// stay short for every other route.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
