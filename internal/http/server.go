package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"gastos/internal/aggregate"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/session"
)

// Options tunes a Server. Zero values select the defaults.
type Options struct {
	Logger         *log.Logger
	Location       *time.Location
	Now            func() time.Time
	RateLimit      ratelimit.Config
	TrustedProxies []string
	Memo           *aggregate.Memo // reported by /metrics when set
	EventKeepAlive time.Duration
}

type Server struct {
	http.Server
	sessions *session.Manager
	logger   *log.Logger
	loc      *time.Location
	now      func() time.Time
	memo     *aggregate.Memo

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	keepAlive        time.Duration
	closing          chan struct{} // closed when Shutdown starts

	appMetrics appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime        time.Time
	totalExpenses int64
	panics        int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Call Shutdown to release the background goroutines.
func NewServer(addr string, sessions *session.Manager, opts Options) *Server {
	logger := log.OrDiscard(opts.Logger).WithComponent(log.ComponentHTTP)
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventKeepAlive <= 0 {
		opts.EventKeepAlive = 15 * time.Second
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64KB
		},
		sessions:         sessions,
		logger:           logger,
		loc:              opts.Location,
		now:              opts.Now,
		memo:             opts.Memo,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		keepAlive:        opts.EventKeepAlive,
		closing:          make(chan struct{}),
		appMetrics:       appMetrics{uptime: time.Now()},
	}

	// event streams never end on their own
	s.RegisterOnShutdown(func() { close(s.closing) })

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/session", s.handleSignIn)
	mux.HandleFunc("DELETE /api/session", s.handleSignOut)
	mux.HandleFunc("GET /api/session", s.handleSessionInfo)

	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("PUT /api/view/period", s.handleSetPeriod)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("PUT /api/budget", s.handleSetBudget)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleRemoveCategory)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handleUpdatePreferences)
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile/name", s.handleSetDisplayName)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP,
		http.MethodPost, http.MethodPut, http.MethodDelete)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.recoverPanics(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h

	return s
}

// recoverPanics turns a handler panic into a 500 response.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.appMetrics.addPanic()
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panicked",
					log.FieldError, fmt.Sprint(rec),
					log.FieldErrorType, log.ErrorTypeInternal,
					"stack", string(debug.Stack()))
				InternalServerError("internal error").Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
