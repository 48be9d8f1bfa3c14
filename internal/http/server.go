// Package http exposes the tip tracker as a JSON API: tip CRUD,
// aggregate queries, free-text search, and the today widget.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tipped/internal/cache"
	applog "tipped/internal/log"
	"tipped/internal/middleware/ratelimit"
	"tipped/internal/middleware/security"
	"tipped/internal/middleware/trace"
	"tipped/internal/services"
)

type Server struct {
	http.Server

	tips       *services.TipService
	aggregates *services.AggregateService

	detector *security.Detector
	limiter  *ratelimit.Limiter

	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, tips *services.TipService, aggregates *services.AggregateService, cacheManager *cache.Manager) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           nil, // set below once the chain is built
			ReadHeaderTimeout: 10 * time.Second,
		},
		tips:         tips,
		aggregates:   aggregates,
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		cacheManager: cacheManager,
	}

	mux.HandleFunc("POST /tips", s.withWriteLimit(s.handleCreateTip))
	mux.HandleFunc("GET /tips/{id}", s.handleGetTip)
	mux.HandleFunc("PATCH /tips/{id}", s.withWriteLimit(s.handleUpdateTip))
	mux.HandleFunc("DELETE /tips/{id}", s.withWriteLimit(s.handleDeleteTip))
	mux.HandleFunc("GET /tips/search", s.handleSearchTips)
	mux.HandleFunc("GET /aggregates", s.handleAggregates)
	mux.HandleFunc("GET /widget/today", s.handleWidgetToday)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP)
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)

	var handler http.Handler = mux
	handler = s.withSuspicionCheck(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)
	s.Server.Handler = handler

	return s
}

// withWriteLimit rate limits mutating endpoints per client IP.
func (s *Server) withWriteLimit(next http.HandlerFunc) http.HandlerFunc {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(next)
	return limited.ServeHTTP
}

// withSuspicionCheck rejects obvious probe traffic before routing.
func (s *Server) withSuspicionCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected suspicious request",
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the HTTP server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
