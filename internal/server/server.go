package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/anomaly"
	"github.com/selimozcann/seasec/internal/app"
	"github.com/selimozcann/seasec/internal/crawl"
	"github.com/selimozcann/seasec/internal/features"
	"github.com/selimozcann/seasec/internal/ingest"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/report"
)

// Server exposes the Service over HTTP.
type Server struct {
	svc            *app.Service
	metrics        *metrics.Metrics
	log            *zap.Logger
	requestTimeout time.Duration
}

func New(svc *app.Service, m *metrics.Metrics, log *zap.Logger, requestTimeout time.Duration) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &Server{svc: svc, metrics: m, log: log, requestTimeout: requestTimeout}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Get("/", s.handleRoot)
		r.Get("/buzz", s.handleBuzz)
		r.Post("/set_site", s.handleSetSite)
		r.Post("/ingest/run", s.handleIngest)
		r.Post("/learn/train", s.handleTrain)
		r.Route("/report", func(r chi.Router) {
			r.Post("/generate", s.handleReport)
			r.Get("/latest/{format}", s.handleLatest)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "target_site": s.svc.TargetSite()})
}

func (s *Server) handleBuzz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ding Dong!"})
}

func (s *Server) handleSetSite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing 'url'"})
		return
	}
	site, err := s.svc.SetTargetSite(body.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"target_site": site})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	maxPages := s.svc.DefaultMaxPages()
	if raw := r.URL.Query().Get("max_pages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "max_pages must be a positive integer"})
			return
		}
		maxPages = n
	}
	res, err := s.svc.Ingest(r.Context(), maxPages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Train(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.GenerateReport(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.LatestArtifact(chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, features.ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, anomaly.ErrModelNotTrained):
		return http.StatusConflict
	case errors.Is(err, anomaly.ErrEmptyTrainingSet),
		errors.Is(err, report.ErrEmptyReport),
		errors.Is(err, ingest.ErrInvalidSite),
		errors.Is(err, crawl.ErrInvalidTarget),
		errors.Is(err, app.ErrNoTargetSite):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrArtifactNotFound),
		errors.Is(err, report.ErrUnknownFormat):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error(), Hint: strings.Join(errors.GetAllHints(err), "; ")}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			body = errorBody{Error: "internal error"}
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}
