// Package server exposes uploads, report downloads, stored runs and the
// streaming websocket over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/monitoring"
	"github.com/sells-group/atlas-research/internal/resilience"
	"github.com/sells-group/atlas-research/internal/session"
	"github.com/sells-group/atlas-research/internal/store"
)

// Uploads stores an uploaded record list.
type Uploads interface {
	Accept(ctx context.Context, original string, r io.Reader) (model.Upload, error)
}

// Reports resolves exported workbook names to files.
type Reports interface {
	Path(name string) (string, error)
}

// Runs reads persisted outcomes.
type Runs interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	GetBatch(ctx context.Context, id string) (*model.BatchSummary, error)
}

// Metrics summarizes recent runs.
type Metrics interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Breakers reports the circuit state of each provider.
type Breakers interface {
	States() map[string]resilience.CircuitState
}

// Config holds the server's collaborators. Runs, Metrics and Breakers may
// be nil.
type Config struct {
	Uploads        Uploads
	Reports        Reports
	Runs           Runs
	Metrics        Metrics
	Breakers       Breakers
	Session        session.Deps
	AllowedOrigins []string
	// MaxUploadBytes bounds the multipart request body.
	MaxUploadBytes int64
}

// Server routes HTTP requests to the orchestration components.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Server{cfg: cfg}
}

// Routes returns the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/ws", s.stream)
	r.Get("/reports/{name}", s.download)
	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", s.upload)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/batches/{id}", s.getBatch)
		r.Get("/metrics", s.metrics)
	})
	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers,omitempty"`
}

// health reports "degraded" while any provider circuit is not closed.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.cfg.Breakers != nil {
		states := s.cfg.Breakers.States()
		resp.Providers = make(map[string]string, len(states))
		for name, st := range states {
			resp.Providers[name] = st.String()
			if st != resilience.CircuitClosed {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// stream upgrades to a websocket and serves one session on it. The
// session ends when the handler's request context is cancelled.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := session.Accept(w, r, s.cfg.AllowedOrigins)
	if err != nil {
		zap.L().Warn("server: websocket upgrade failed", zap.Error(err))
		return
	}
	sess := session.New(conn, s.cfg.Session)
	if err := sess.Serve(r.Context(), r.URL.Query().Get("target")); err != nil {
		zap.L().Warn("server: session ended with error", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	// Multipart framing adds overhead on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close() //nolint:errcheck

	up, err := s.cfg.Uploads.Accept(r.Context(), header.Filename, file)
	if err != nil {
		if model.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("server: upload failed", zap.String("original", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.cfg.Reports.Path(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotImplemented, "run storage is not configured")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:    model.RunStatus(q.Get("status")),
		TargetKey: q.Get("target"),
		BatchID:   q.Get("batch_id"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := s.cfg.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotImplemented, "run storage is not configured")
		return
	}
	run, err := s.cfg.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.lookupFailed(w, "run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeError(w, http.StatusNotImplemented, "run storage is not configured")
		return
	}
	b, err := s.cfg.Runs.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.lookupFailed(w, "batch", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Metrics == nil {
		writeError(w, http.StatusNotImplemented, "metrics are not configured")
		return
	}
	hours, err := intParam(r.URL.Query().Get("hours"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
		return
	}
	if hours == 0 {
		hours = 24
	}
	snap, err := s.cfg.Metrics.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("server: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect metrics failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) lookupFailed(w http.ResponseWriter, kind string, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	zap.L().Error("server: get "+kind, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "get "+kind+" failed")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
