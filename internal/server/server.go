// Package server exposes the verification service over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/config"
	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/pipeline"
	"github.com/JoshuaOlubori/truemeds-v2/internal/stats"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// hardMaxUploadBytes is the absolute upload ceiling, enforced independently
// of the configurable normalizer ceiling.
const hardMaxUploadBytes = 10 << 20

// Verifier is the slice of the pipeline the handlers need; tests substitute
// a fake.
type Verifier interface {
	Verify(ctx context.Context, upload pipeline.Upload, geo *model.Geolocation) (*model.ScanRecord, error)
	Train(ctx context.Context, upload pipeline.Upload, label model.Verdict, metadata model.TrainingMetadata, uploadedBy string) (*model.TrainingImage, error)
}

// Server wires handlers to their collaborators.
type Server struct {
	store    store.Store
	verifier Verifier
	stats    *stats.Aggregator
	cfg      config.ServerConfig
}

// New creates a Server.
func New(st store.Store, verifier Verifier, aggregator *stats.Aggregator, cfg config.ServerConfig) *Server {
	return &Server{
		store:    st,
		verifier: verifier,
		stats:    aggregator,
		cfg:      cfg,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimitRPS > 0 {
		r.Use(rateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/scan", s.handleScan)
	r.Get("/scan/{id}", s.handleGetScan)
	r.Post("/feedback", s.handleFeedback)
	r.Get("/stats", s.handleStats)
	r.Get("/stats/locations", s.handleLocations)
	r.Post("/training", s.handleTrainingUpload)
	r.Get("/training", s.handleTrainingList)

	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Error("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
