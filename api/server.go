package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eddielth/air-monitor/config"
	"github.com/eddielth/air-monitor/evaluator"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/metrics"
	"github.com/eddielth/air-monitor/storage"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 1000
	maxBodyBytes        = 1 << 20
)

// Server exposes readings, settings and fan control over HTTP
type Server struct {
	server    *http.Server
	store     storage.Store
	evaluator *evaluator.Evaluator
	ingestor  *evaluator.Ingestor
	log       *zap.Logger
	now       func() time.Time
}

// NewServer wires the routes and middleware
func NewServer(cfg config.HTTPConfig, store storage.Store, ev *evaluator.Evaluator, in *evaluator.Ingestor) *Server {
	s := &Server{
		store:     store,
		evaluator: ev,
		ingestor:  in,
		log:       logger.Zap().Named("http"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/api/sensor/latest", s.latestReading).Methods(http.MethodGet)
	router.HandleFunc("/api/sensor/history", s.readingHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/sensor/ingest", s.ingest).Methods(http.MethodPost)
	router.HandleFunc("/api/notifications", s.notifications).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", s.getSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", s.postSettings).Methods(http.MethodPost)
	router.HandleFunc("/api/fan/state", s.getFanState).Methods(http.MethodGet)
	router.HandleFunc("/api/fan/state", s.postFanState).Methods(http.MethodPost)
	router.HandleFunc("/api/evaluate", s.evaluate).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(router)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.log)),
		handlers.PrintRecoveryStack(true),
	)(handler)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown; http.ErrServerClosed is not an error
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter records status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		// route template keeps label cardinality bounded
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("ip", r.RemoteAddr),
			zap.Int("status", rw.statusCode),
			zap.Int("response_size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// envelope is the response body shape of every API route
type envelope struct {
	OK    bool        `json:"ok,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error(msg, zap.Error(err))
	}
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	s.writeJSON(w, status, envelope{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
