package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/config"
	"github.com/JakeFAU/lottery-crawler/internal/crawl"
	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/metrics"
	"github.com/JakeFAU/lottery-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/lottery-crawler/internal/retention"
)

// Crawler runs manual crawls.
type Crawler interface {
	Codes() []string
	Run(ctx context.Context, codes []string, force bool, pageSize int) crawl.Summary
}

// Cleaner runs the retention job on demand.
type Cleaner interface {
	Run(ctx context.Context) (retention.Result, error)
}

// Server wires HTTP handlers to the store, the orchestrator and the cleaner.
type Server struct {
	router  chi.Router
	store   lottery.Store
	crawler Crawler
	cleaner Cleaner
	limiter *ratelimit.Limiter
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store lottery.Store,
	crawler Crawler,
	cleaner Cleaner,
	cfg config.Config,
	logger *zap.Logger,
) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter, err := ratelimit.New(ratelimit.Config{PerMinute: cfg.API.RateLimitPerMinute})
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	s := &Server{
		store:   store,
		crawler: crawler,
		cleaner: cleaner,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	origins := cfg.API.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
		r.Use(s.rateLimitMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/lottery/types", s.listTypes)
			r.Route("/lottery/{code}", func(r chi.Router) {
				r.Get("/latest", s.latest)
				r.Get("/history", s.history)
				r.Get("/stats", s.stats)
				r.Get("/issues/{issue}", s.issue)
			})
		})

		// Crawls and cleanups can outlast the read timeout; they stop when the
		// client goes away.
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/crawl", s.manualCrawl)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/cleanup", s.runCleanup)
				r.Get("/cleanup/logs", s.cleanupLogs)
				r.Get("/errors", s.listErrors)
				r.Post("/errors/{id}/fix", s.fixError)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check: database unavailable", zap.Error(err))
		database = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": database})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Count   *int   `json:"count,omitempty"`
	Total   *int64 `json:"total,omitempty"`
	Page    int    `json:"page,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func listEnvelope(data any, count int) envelope {
	return envelope{Success: true, Data: data, Count: &count}
}

// queryInt parses an integer query parameter, falling back to def when absent
// or malformed, and clamps it to [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) int {
	v := def
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v = n
		}
	}
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, msg)
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}
