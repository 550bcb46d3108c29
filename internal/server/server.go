// Package server exposes the audit report, background runs and per-path
// refresh over HTTP for the dashboard UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/masahif/sitediff/internal/audit"
	"github.com/masahif/sitediff/internal/export"
	"github.com/masahif/sitediff/internal/job"
	"github.com/masahif/sitediff/internal/report"
	"github.com/masahif/sitediff/internal/storage"
)

// Auditor runs full audits and per-path refreshes
type Auditor interface {
	Run(ctx context.Context, progress audit.ProgressFunc) (*report.Report, error)
	Refresh(ctx context.Context, path string, recompute bool) (*report.PageEntry, error)
}

// Server is the dashboard HTTP server
type Server struct {
	addr      string
	staticDir string
	auditor   Auditor
	store     storage.ReportStore
	jobs      *job.Manager
	router    chi.Router

	closing   chan struct{} // closed when shutdown starts, ends event streams
	closeOnce sync.Once
}

// New creates a server. staticDir is served at / when it exists.
func New(addr, staticDir string, auditor Auditor, store storage.ReportStore, jobs *job.Manager) *Server {
	s := &Server{
		addr:      addr,
		staticDir: staticDir,
		auditor:   auditor,
		store:     store,
		jobs:      jobs,
		closing:   make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/report", s.handleReport)
		r.Get("/refresh", s.handleRefresh)
		r.Get("/export.xlsx", s.handleExport)

		r.Route("/crawl", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/jobs/{id}", s.handleJob)
			r.Get("/jobs/{id}/events", s.handleJobEvents)
			r.Post("/start", s.handleStart)
			r.Post("/cancel", s.handleCancel)
		})
	})

	if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	} else if s.staticDir != "" {
		slog.Warn("Static directory not found, UI disabled", "dir", s.staticDir)
	}

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and stops the running job
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := s.jobs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping job: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Load(r.Context())
	if errors.Is(err, storage.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, errors.New("no report yet, start a crawl first"))
		return
	}
	if err != nil {
		slog.Error("Failed to load report", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Latest())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	status, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, job.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleJobEvents streams status snapshots of a job as server-sent events
// until the job finishes, the client leaves or the server shuts down
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe, err := s.jobs.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				slog.Warn("Failed to encode job status", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		}
	}
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	status, err := s.jobs.Start(func(ctx context.Context, progress func(int, string)) error {
		_, err := s.auditor.Run(ctx, progress)
		return err
	})
	if errors.Is(err, job.ErrJobRunning) {
		writeJSON(w, http.StatusConflict, status)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	status, err := s.jobs.Cancel()
	if errors.Is(err, job.ErrNoRunningJob) {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

type refreshResponse struct {
	Path string            `json:"path"`
	Data *report.PageEntry `json:"data"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing path"))
		return
	}
	recompute, _ := strconv.ParseBool(r.URL.Query().Get("recompute"))

	entry, err := s.auditor.Refresh(r.Context(), path, recompute)
	switch {
	case errors.Is(err, storage.ErrReportNotFound):
		writeError(w, http.StatusNotFound, errors.New("no report yet, start a crawl first"))
		return
	case errors.Is(err, audit.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		slog.Error("Refresh failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Path: path, Data: entry})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Load(r.Context())
	if errors.Is(err, storage.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, errors.New("no report yet, start a crawl first"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="report.xlsx"`)
	if err := export.WriteXLSX(w, rep); err != nil {
		slog.Error("Export failed", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
