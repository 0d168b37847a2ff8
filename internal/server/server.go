// Package server exposes the analysis pipeline as a small web dashboard and
// JSON API.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/extraction"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/report"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// DefaultMaxUpload caps the multipart body of POST /api/analyze.
const DefaultMaxUpload = 64 << 20

type Dependencies struct {
	Analyzer  *analysis.Analyzer
	Exporter  *report.Exporter
	Extractor *extraction.Extractor
	// Registry receives the HTTP collectors and backs /metrics. Nil disables both.
	Registry *prometheus.Registry
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUpload       int64
	Defaults        analysis.Options
	LoadOptions     analysis.LoadOptions
	Dependencies    Dependencies
}

type Server struct {
	router   *chi.Mux
	logger   zerolog.Logger
	server   *http.Server
	cfg      Config
	sessions *Store
	validate *validator.Validate
}

func New(logger zerolog.Logger, cfg Config) *Server {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		logger:   logger,
		cfg:      cfg,
		sessions: NewStore(DefaultMaxSessions),
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger(&s.logger))
	if reg := cfg.Dependencies.Registry; reg != nil {
		r.Use(Instrument(NewHTTPMetrics(reg)))
	}
	r.Use(middleware.Recoverer)

	r.Get("/", s.index)
	r.Get("/healthz", s.health)
	if reg := cfg.Dependencies.Registry; reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.analyze)
		r.Post("/extract", s.extract)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/latest", s.latestSession)
			r.Get("/{id}", s.getSession)
			r.Get("/{id}/report.html", s.sessionReport)
			r.Get("/{id}/export.zip", s.sessionExport)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, r, errNotFound("route not found"))
	})

	s.router = r
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions exposes the in-memory session store.
func (s *Server) Sessions() *Store { return s.sessions }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		err := s.server.Shutdown(sctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = s.server.Close()
		}
		return err
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, s.cfg.Defaults); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("render index")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}
