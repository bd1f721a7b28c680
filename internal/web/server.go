// Package web provides the HTTP API and page for fleet data exchange.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/config"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	webmw "github.com/paulodiramos/tvdefleetonline-sub002/internal/web/middleware"
)

// Exchange is the backend the handlers call. *core.Service implements it.
type Exchange interface {
	Catalog() core.Catalog
	Export(ctx context.Context, w io.Writer, req core.ExportRequest) error
	ExportAll(ctx context.Context, w io.Writer, selections map[string][]string, delimiter rune, day time.Time) error
	PreviewImport(ctx context.Context, req core.ImportRequest) (*core.ImportPreview, error)
	CommitImport(ctx context.Context, req core.ImportRequest) (*core.ImportResult, error)
	ListImports(ctx context.Context, tipo string, limit int) ([]core.ImportSummary, error)
}

// Server is the HTTP server for the exchange API.
type Server struct {
	exchange Exchange
	limiter  *core.ImportLimiter
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	now      func() time.Time

	defaultDelimiter rune
	stopCleanup      chan struct{}
}

// NewServer creates a new Server instance.
func NewServer(exchange Exchange, limiter *core.ImportLimiter, cfg *config.Config) *Server {
	delim, err := core.ParseDelimiter(cfg.Export.DefaultDelimiter, ';')
	if err != nil {
		delim = ';'
	}

	s := &Server{
		exchange:         exchange,
		limiter:          limiter,
		cfg:              cfg,
		router:           chi.NewRouter(),
		now:              time.Now,
		defaultDelimiter: delim,
		stopCleanup:      make(chan struct{}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "text/html", "text/csv", "application/json"))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// rateLimit builds a per-IP limiter whose idle entries are swept until
// Shutdown.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := webmw.NewRateLimiter(perMinute, time.Minute)
	go rl.Cleanup(time.Minute, s.stopCleanup)
	return rl.Middleware
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Post("/sessao", s.handleSession)
	s.router.Get("/parcial/vazio", s.handleEmptyPartial)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/exportacao", func(r chi.Router) {
		r.Use(webmw.BearerAuth(s.cfg.Security.JWTSecret, s.cfg.Security.JWTIssuer))
		r.Use(withRequestMetadata)

		r.Get("/campos", s.handleCatalog)
		r.Get("/completa", s.handleExportAll)
		r.Get("/importacoes", s.handleHistory)
		r.Get("/{tipo}", s.handleExport)

		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled && s.cfg.Rate.ImportLimit > 0 {
				r.Use(s.rateLimit(s.cfg.Rate.ImportLimit))
			}
			r.Post("/importar/{tipo}/preview", s.handlePreview)
			r.Post("/importar/{tipo}/confirmar", s.handleConfirm)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for in-flight imports.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCleanup)
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// htmx is loaded from unpkg; inline styles cover the page layout.
				h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
