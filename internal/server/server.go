// Package server exposes the sorting service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/classify"
	"github.com/local/routesort/internal/filetype"
	"github.com/local/routesort/internal/metrics"
	"github.com/local/routesort/internal/queue"
	"github.com/local/routesort/internal/reftable"
	"github.com/local/routesort/internal/statuscheck"
	"github.com/local/routesort/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	Cancel(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type PageStore interface {
	GetPage(ctx context.Context, jobID string, page int) (classify.PageRecord, bool, error)
}

type ReadyChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Queue  Queue
	Status StatusStore
	Pages  PageStore
	Ready  ReadyChecker

	TablePath string
	Import    reftable.ImportOptions
	UploadDir string
	OutputDir string
	// MaxUploadBytes caps multipart bodies; zero means 64 MiB.
	MaxUploadBytes int64
	// AllowExternalRefs accepts JSON references beyond s3:// and files
	// under UploadDir.
	AllowExternalRefs bool
}

type Server struct {
	deps     Dependencies
	detector *filetype.Detector
	router   *mux.Router
}

func New(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 64 << 20
	}
	s := &Server{deps: deps, detector: filetype.New(), router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(requestLogger)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/table", s.handleTableGet).Methods(http.MethodGet)
	r.HandleFunc("/table", s.handleTableImport).Methods(http.MethodPost)

	r.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", s.handleJobStatus).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/pages/{page:[0-9]+}", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/files/{name}", s.handleDownload).Methods(http.MethodGet)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	sum := s.deps.Ready.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
