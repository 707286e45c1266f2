// Package http serves the expense dashboard, its HTMX partials and chart
// feeds, and the tarot page.
package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
	"tally/internal/tarot"
	appweb "tally/web"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// requestTimeout bounds every store call made while serving a request.
const requestTimeout = 7 * time.Second

// Ledger is the query and write surface the handlers use.
type Ledger interface {
	RecordTransaction(ctx context.Context, t core.Transaction) (string, error)
	RecentTransactions(ctx context.Context, user string, limit int) ([]core.Transaction, error)
	Users(ctx context.Context) ([]core.User, error)
	Summary(ctx context.Context, user string, g core.Granularity, limit int) ([]core.PeriodTotal, error)
	ShareWindow(name string) core.Window
	Shares(ctx context.Context, q core.ShareQuery) ([]core.Share, error)
	Dashboard(ctx context.Context, user string, g core.Granularity, dim core.Dimension, window core.Window) (services.Dashboard, error)
	Location() *time.Location
	Ping(ctx context.Context) error
	Stats() services.Stats
}

// Deck draws tarot spreads and resolves card files.
type Deck interface {
	Draw(n int) ([]tarot.DrawnCard, error)
	Path(file string) (string, error)
	Len() int
}

type Options struct {
	Addr   string
	Ledger Ledger
	// Deck may be nil when no card directory is available.
	Deck        Deck
	TarotCover  string
	TarotSpread int

	RateLimitPerMinute int
	Logger             *applog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	ledger    Ledger
	deck      Deck
	cover     string
	spread    int
	logger    *applog.Logger
	now       func() time.Time
	started   time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware.
// Template parse failures are logged; pages then answer 500 and /readyz
// reports not ready.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TarotSpread <= 0 {
		opts.TarotSpread = tarot.DefaultSpread
	}

	s := &Server{
		ledger:           opts.Ledger,
		deck:             opts.Deck,
		cover:            opts.TarotCover,
		spread:           opts.TarotSpread,
		logger:           logger,
		now:              opts.Now,
		started:          opts.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)

	mux.HandleFunc("GET /ui/recent", s.handleRecentPartial)
	mux.HandleFunc("GET /ui/summary", s.handleSummaryPartial)
	mux.HandleFunc("GET /ui/ratio", s.handleRatioPartial)
	mux.HandleFunc("GET /api/summary", s.handleSummaryJSON)
	mux.HandleFunc("GET /api/ratio", s.handleRatioJSON)

	mux.HandleFunc("GET /tarot", s.handleTarot)
	mux.HandleFunc("POST /tarot/draw", s.handleTarotDraw)
	cardCache := security.StaticAssetMiddleware(86400)
	mux.Handle("GET /tarot/cards/{file}", cardCache(http.HandlerFunc(s.handleTarotCard)))
	mux.Handle("GET /tarot/cover", cardCache(http.HandlerFunc(s.handleTarotCover)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Too many requests, try again in a minute").
		BodyHTML(`<div class="error">Rate limit exceeded. Please try again later.</div>`).
		Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into a buffer so a failure can still
// answer 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.renderString(r, name, data)
	if err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (s *Server) renderString(r *http.Request, name string, data any) (string, error) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		return "", errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		return "", err
	}
	return buf.String(), nil
}
