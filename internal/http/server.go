package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	applog "finances/internal/log"
	"finances/internal/middleware/ratelimit"
	"finances/internal/middleware/security"
	"finances/internal/middleware/trace"
	"finances/internal/services"
)

const defaultMaxUploadBytes = 10 << 20

// Options configures the HTTP server.
type Options struct {
	Addr              string
	MaxUploadBytes    int64
	RequestsPerMinute int
	Logger            *applog.Logger
}

// Server is the ledger JSON API.
type Server struct {
	http.Server

	ledger  *services.LedgerService
	imports *services.ImportService
	rules   *services.RuleService

	maxUpload    int64
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, ledger *services.LedgerService, imports *services.ImportService, rules *services.RuleService) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	limiterCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		ledger:    ledger,
		imports:   imports,
		rules:     rules,
		maxUpload: opts.MaxUploadBytes,
		limiter:   ratelimit.NewLimiter(limiterCfg),
		tracer:    trace.NewMiddleware(security.ClientIP, opts.Logger),
		started:   time.Now(),
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(
		s.tracer.Middleware,
		applog.Middleware(opts.Logger),
		applog.RequestIDMiddleware(trace.RequestID),
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.limiter.Middleware(security.ClientIP, ratelimit.WritesOnly, onRateLimited),
	)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	books := s.registerBookRoutes(api)
	s.registerAccountRoutes(api)
	s.registerTransactionRoutes(api)
	s.registerRuleRoutes(api, books)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) registerBookRoutes(api *mux.Router) *mux.Router {
	api.HandleFunc("/parse", s.handleParse).Methods(http.MethodPost)
	api.HandleFunc("/account-books", s.handleListBooks).Methods(http.MethodGet)
	api.HandleFunc("/account-books", s.handleCreateBook).Methods(http.MethodPost)

	books := api.PathPrefix("/account-books/{bookID}").Subrouter()
	books.HandleFunc("", s.handleGetBook).Methods(http.MethodGet)
	books.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	books.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	books.HandleFunc("/accounts/{accountID}", s.handleDeleteAccount).Methods(http.MethodDelete)
	books.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	books.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	books.HandleFunc("/recalculate-balances", s.handleRecalculateBook).Methods(http.MethodPost)
	return books
}

func (s *Server) registerAccountRoutes(api *mux.Router) {
	accounts := api.PathPrefix("/accounts/{accountID}").Subrouter()
	accounts.HandleFunc("", s.handleGetAccount).Methods(http.MethodGet)
	accounts.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	accounts.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	accounts.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	accounts.HandleFunc("/recompute", s.handleRecompute).Methods(http.MethodPost)
	accounts.HandleFunc("/balance-history", s.handleBalanceHistory).Methods(http.MethodGet)
}

func (s *Server) registerTransactionRoutes(api *mux.Router) {
	api.HandleFunc("/transactions/bulk-delete", s.handleBulkDelete).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{transactionID}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{transactionID}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{transactionID}", s.handleDeleteTransaction).Methods(http.MethodDelete)
}

func (s *Server) registerRuleRoutes(api, books *mux.Router) {
	books.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	books.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	books.HandleFunc("/match", s.handleMatch).Methods(http.MethodGet)
	api.HandleFunc("/rules/{ruleID}", s.handleUpdateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{ruleID}", s.handleDeleteRule).Methods(http.MethodDelete)
}

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentHTTP,
		applog.FieldClientIP, security.ClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"requests":  s.tracer.GetMetrics().TotalRequests,
	})
}

// handleReady checks that storage answers within five seconds.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := s.ledger.ListBooks(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness check failed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
		return
	}
	OK(w, map[string]string{"status": "ready"})
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close releases background resources without waiting for requests.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.Server.Close()
}
