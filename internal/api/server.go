package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/metrics"
	"github.com/JakeFAU/tuml/internal/quota"
)

// UsageReader reports the current quota snapshot.
type UsageReader interface {
	Usage(ctx context.Context) (quota.Usage, error)
}

// Server wires HTTP handlers to the registry and the quota governor.
type Server struct {
	router   chi.Router
	registry blog.Registry
	usage    UsageReader
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(registry blog.Registry, usage UsageReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		usage:    usage,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/limits", s.getLimits)
		r.Route("/blogs", func(r chi.Router) {
			r.Get("/", s.listBlogs)
			r.Get("/{name}", s.getBlog)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getLimits(w http.ResponseWriter, r *http.Request) {
	usage, err := s.usage.Usage(r.Context())
	if err != nil {
		s.logger.Error("Failed to read quota usage", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read quota usage")
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

func (s *Server) listBlogs(w http.ResponseWriter, r *http.Request) {
	var (
		recs []blog.Record
		err  error
	)
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := blog.ParseState(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", raw))
			return
		}
		recs, err = s.registry.ListByState(r.Context(), state)
	} else {
		recs, err = s.registry.List(r.Context())
	}
	if err != nil {
		s.logger.Error("Failed to list blogs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list blogs")
		return
	}
	if recs == nil {
		recs = []blog.Record{}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].PostCount > recs[j].PostCount })
	s.writeJSON(w, http.StatusOK, map[string]any{"blogs": recs, "count": len(recs)})
}

func (s *Server) getBlog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.registry.Get(r.Context(), name)
	if errors.Is(err, blog.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "blog not tracked")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load blog", zap.String("blog", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load blog")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("Request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
