package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"expenses/internal/core"
	"expenses/internal/identity"
	applog "expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/store"
	appweb "expenses/web"
)

// ExpenseAPI is what the handlers need from the session service.
type ExpenseAPI interface {
	Dashboard(ctx context.Context, id identity.Identity) (store.Snapshot, error)
	Records(ctx context.Context, id identity.Identity) ([]core.Expense, error)
	Create(ctx context.Context, id identity.Identity, in core.ExpenseInput) (core.Expense, error)
	Update(ctx context.Context, id identity.Identity, expenseID string, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id identity.Identity, expenseID string) error
	SelectForEdit(ctx context.Context, id identity.Identity, expenseID string) (core.Expense, error)
	ClearSelection(ctx context.Context, id identity.Identity) error
}

// ReadyCheck reports whether a dependency can serve requests.
type ReadyCheck func(ctx context.Context) error

// Options configures the server. Zero values get defaults.
type Options struct {
	Addr               string
	Currency           string
	IdentityHeader     string
	RequireIdentity    bool
	RateLimitPerMinute int
	Logger             *applog.Logger
	// ReadyChecks are run by /readyz, keyed by dependency name.
	ReadyChecks map[string]ReadyCheck
	// SessionCount reports the number of loaded stores for /metrics.
	SessionCount func() int
}

type appMetrics struct {
	created int64
	updated int64
	deleted int64
	uptime  time.Time
}

type Server struct {
	http.Server
	templates        *template.Template
	expenses         ExpenseAPI
	currency         string
	logger           *applog.Logger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	readyChecks      map[string]ReadyCheck
	sessionCount     func() int
	appMetrics       appMetrics
	shutdownOnce     sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(opts Options, expenses ExpenseAPI) *Server {
	if opts.Currency == "" {
		opts.Currency = core.DefaultCurrency
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		expenses:         expenses,
		currency:         opts.Currency,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		readyChecks:      opts.ReadyChecks,
		sessionCount:     opts.SessionCount,
		appMetrics:       appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("POST /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteExpense)
	mux.HandleFunc("POST /expenses/{id}/edit", s.handleSelectForEdit)
	mux.HandleFunc("POST /edit/cancel", s.handleCancelEdit)

	mux.HandleFunc("GET /api/expenses", s.handleAPIExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/analytics", s.handleAPIAnalytics)

	mux.HandleFunc("GET /report", s.handleReportHTML)
	mux.HandleFunc("GET /report.md", s.handleReportMarkdown)

	provider := identity.NewHeaderProvider(opts.IdentityHeader, opts.RequireIdentity)

	var handler http.Handler = mux
	handler = s.limitMutations(handler)
	handler = applog.Middleware(logger, trace.RequestID)(handler)
	handler = identity.Middleware(provider)(handler)
	handler = s.securityDetector.StripUntrusted(provider.Header)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// limitMutations applies the rate limiter to state-changing requests only.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		if wantsJSON(r) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded"})
			return
		}
		ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mutating(r.Method) {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background goroutines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) countMutation(op string) {
	switch op {
	case store.OpCreate:
		atomic.AddInt64(&s.appMetrics.created, 1)
	case store.OpUpdate:
		atomic.AddInt64(&s.appMetrics.updated, 1)
	case store.OpDelete:
		atomic.AddInt64(&s.appMetrics.deleted, 1)
	}
}
