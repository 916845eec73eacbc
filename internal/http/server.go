// Package http serves the expense REST API.
package http

import (
	"context"
	"net/http"
	"time"

	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Expenses  ExpenseManager
	Summaries SummaryReporter
	Health    HealthChecker
	CSV       CSVFormatter
	Logger    *log.Logger

	// RateLimitPerMinute caps mutating requests per client IP.
	RateLimitPerMinute int
	TrustedProxies     []string
	CORSOrigins        []string

	// Now overrides the clock used for defaults and validation.
	Now func() time.Time
}

type Server struct {
	http.Server
	expenses  ExpenseManager
	summaries SummaryReporter
	health    HealthChecker
	csv       CSVFormatter
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	now       func() time.Time
}

// NewServer builds the API server on addr. Call Shutdown to stop it and
// release the rate limiter.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.Component(log.ComponentHTTP)
	}

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		expenses:  deps.Expenses,
		summaries: deps.Summaries,
		health:    deps.Health,
		csv:       deps.CSV,
		detector:  detector,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		now:       deps.Now,
	}

	cors := security.DefaultCORSConfig()
	if len(deps.CORSOrigins) > 0 {
		cors.AllowedOrigins = deps.CORSOrigins
	}

	var handler http.Handler = s.routes()
	handler = security.CORS(cors)(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(deps.Logger, detector.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /api/expenses", limited(http.HandlerFunc(s.handleCreateExpense)))
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /api/expenses/summary/monthly", s.handleMonthlySummary)
	mux.HandleFunc("GET /api/expenses/export/csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.Handle("PUT /api/expenses/{id}", limited(http.HandlerFunc(s.handleUpdateExpense)))
	mux.Handle("DELETE /api/expenses/{id}", limited(http.HandlerFunc(s.handleDeleteExpense)))

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}
