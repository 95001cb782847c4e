package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kharch/internal/export"
	klog "kharch/internal/log"
	"kharch/internal/metrics"
	"kharch/internal/middleware/ratelimit"
	"kharch/internal/middleware/security"
	"kharch/internal/middleware/trace"
	"kharch/internal/services"
	"kharch/internal/store"
)

const storeTimeout = 10 * time.Second

// Server serves the ledger REST API.
type Server struct {
	http.Server
	ledger   *services.Ledger
	renderer *export.Renderer
	pinger   store.Pinger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	history  int
	started  time.Time
	mux      *http.ServeMux

	shutdownOnce sync.Once
}

// Deps are the collaborators of a Server. Metrics, Limiter and Detector may
// be nil.
type Deps struct {
	Ledger   *services.Ledger
	Renderer *export.Renderer
	Pinger   store.Pinger
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.Limiter
	Detector *security.Detector
	Logger   *klog.Logger
	// History is the default number of cycles listed by GET /api/cycles.
	History int
}

// NewServer builds the server and its route table.
func NewServer(addr string, d Deps) *Server {
	if d.Detector == nil {
		d.Detector = security.NewDetector()
	}
	if d.Logger == nil {
		d.Logger = klog.FromContext(context.Background())
	}
	if d.History <= 0 {
		d.History = 12
	}

	s := &Server{
		ledger:   d.Ledger,
		renderer: d.Renderer,
		pinger:   d.Pinger,
		metrics:  d.Metrics,
		limiter:  d.Limiter,
		detector: d.Detector,
		history:  d.History,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}

	s.handle("GET /healthz", s.handleHealth)
	s.handle("GET /readyz", s.handleReady)
	s.mux.Handle("GET /metrics", trace.Route("GET /metrics", d.Metrics.Handler()))

	s.handle("GET /api/members", s.handleListMembers)
	s.handle("POST /api/members", s.handleCreateMember)
	s.handle("GET /api/members/{id}", s.handleGetMember)
	s.handle("PUT /api/members/{id}", s.handleUpdateMember)
	s.handle("DELETE /api/members/{id}", s.handleDeleteMember)

	s.handle("GET /api/expenses", s.handleListExpenses)
	s.handle("POST /api/expenses", s.handleCreateExpense)
	s.handle("GET /api/expenses/{id}", s.handleGetExpense)
	s.handle("PUT /api/expenses/{id}", s.handleUpdateExpense)
	s.handle("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	s.handle("GET /api/categories", s.handleCategories)
	s.handle("GET /api/cycles", s.handleListCycles)
	s.handle("GET /api/cycles/current", s.handleCurrentCycle)
	s.handle("GET /api/cycles/{key}/summary", s.handleGetCycleSummary)
	s.handle("PUT /api/cycles/{key}/summary", s.handlePutCycleSummary)
	s.handle("GET /api/dashboard", s.handleDashboard)

	s.handle("GET /api/reports/csv", s.handleReportCSV)
	s.handle("GET /api/reports/print", s.handleReportPrint)
	s.handle("GET /api/backup", s.handleBackup)
	s.handle("POST /api/restore", s.handleRestore)

	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.Middleware(s.detector.ClientIP, s.onRateLimited)(h)
	}
	h = s.screen(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = klog.Middleware(d.Logger, trace.RequestID)(h)
	h = trace.NewMiddleware(s.detector.ClientIP, s.metrics).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// handle registers h under pattern and labels its requests with the pattern.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, trace.Route(pattern, h))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	klog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		klog.FieldClientIP, s.detector.ClientIP(r),
		klog.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// screen logs requests that look like scanner probes. They are still served;
// the mux answers most of them with 404.
func (s *Server) screen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.IsSuspicious(r) {
			klog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				klog.FieldClientIP, s.detector.ClientIP(r),
				klog.FieldPath, r.URL.Path,
				klog.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// fail logs err at the level its response deserves and writes the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := DomainError(err)
	logger := klog.FromContext(r.Context())
	if resp.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			klog.FieldOperation, op,
			klog.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			klog.FieldOperation, op,
			klog.FieldError, err)
	}
	resp.Write(w)
}

func storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		slog.InfoContext(ctx, "Shutting down HTTP server")
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storeContext(r)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.pinger == nil {
		checks["store"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	checks["cache_entries"] = s.ledger.SummaryCache().Size()
	if s.limiter != nil {
		checks["rate_limit_clients"] = s.limiter.ActiveClients()
	}
	checks["suspicious_requests"] = s.detector.SuspiciousRequests()

	NewResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}
