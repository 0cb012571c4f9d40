package http

import (
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(s.recoverPanics)
	r.Use(handlers.SecurityHeaders)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: corsAllowHeaders,
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         86400,
		}))
	}
	if s.config.RateLimitPerMinute > 0 {
		r.Use(httprate.Limit(s.config.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSONError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests, please try again later", nil)
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if s.config.EnableMetrics {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(handlers.Deadline(s.config.RequestDeadline))
		if s.config.MaxBodyBytes > 0 {
			r.Use(middleware.RequestSize(s.config.MaxBodyBytes))
		}
		r.Use(s.authenticate)

		r.Post("/theses", s.handleSubmitThesis)
		r.Get("/theses", s.handleListByStatus)
		r.Get("/theses/{id}", s.handleGetThesis)
		r.Get("/theses/{id}/versions/{n}", s.handleGetVersion)
		r.Post("/theses/{id}/approve", s.handleApprove)
		r.Post("/theses/{id}/reject", s.handleReject)
		r.Post("/theses/{id}/resubmission-requests", s.handleRequestResubmission)
		r.Post("/theses/{id}/revisions", s.handleSubmitRevision)
		r.Get("/students/{studentID}/thesis", s.handleGetByStudent)
		r.Get("/eligibility", s.handleCheckEligibility)
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// observe echoes the request id, attaches a request-scoped logger, and
// records the request under its route pattern once it completes.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set("X-Request-ID", id)
		log := s.logger.WithRequestID(id)
		r = r.WithContext(logger.WithContext(r.Context(), log))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		took := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(status), took)

		emit := log.Info
		if status >= http.StatusInternalServerError {
			emit = log.Warn
		}
		emit("http request",
			logger.String("method", r.Method),
			logger.String("route", route),
			logger.Int("status", status),
			logger.Int("bytes", ww.BytesWritten()),
			logger.String("ip", clientIP(r)),
			logger.Latency(took),
		)
	})
}

// recoverPanics turns a handler panic into a JSON 500. middleware.Recoverer
// answers with a bare status and no envelope, so it is not used here.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error("handler panicked",
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())),
			)
			writeJSONError(w, r, http.StatusInternalServerError, "internal", "an unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

var corsAllowHeaders = []string{
	"Content-Type", "Authorization", "Accept-Language",
	"X-API-Key", "X-Actor-ID", "X-Actor-Role", "X-Request-ID",
}

// authenticate resolves the acting user for /api/v1.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "authentication is not configured", nil)
			return
		}
		actor, err := s.deps.Auth.Authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(handlers.WithActor(r.Context(), actor)))
	})
}

// clientIP is the remote host after RealIP has applied proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
