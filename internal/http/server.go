package http

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"treso/internal/cache"
	"treso/internal/feed"
	"treso/internal/log"
	"treso/internal/middleware/ratelimit"
	"treso/internal/middleware/security"
	"treso/internal/middleware/trace"
	"treso/internal/ports"
	"treso/internal/services"
)

// Options configures NewServer. Only Service is required.
type Options struct {
	Service *services.TreasuryService
	// Feed, when set, drops cached reports as soon as a project changes.
	Feed               ports.SnapshotSubscriber
	Logger             *log.Logger
	CacheTTL           time.Duration
	CacheSize          int
	RateLimitPerMinute int
	// TrustedProxies lists CIDRs allowed to report the client address in
	// X-Forwarded-For or X-Real-IP.
	TrustedProxies []string
	// Ready backs /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server serves the treasury JSON API.
type Server struct {
	http.Server

	svc          *services.TreasuryService
	ready        func(ctx context.Context) error
	reports      *cache.LRUCache[cachedReport]
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	trace        *trace.Middleware
	logger       *log.Logger
	unsubscribe  func()
	shutdownOnce sync.Once

	// gens counts invalidations per report key. A report computed across an
	// invalidation is served but not cached.
	genMu sync.Mutex
	gens  map[string]uint64
}

// cachedReport remembers the budget import time the report was built from,
// so imports done by another process still refresh it.
type cachedReport struct {
	report   services.ProjectReport
	syncedAt time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	s := &Server{
		svc:          opts.Service,
		ready:        opts.Ready,
		reports:      cache.NewLRUCache[cachedReport](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		logger:       logger.WithComponent(log.ComponentHTTP),
		gens:         make(map[string]uint64),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}
	s.trace = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(10 * time.Minute)

	if opts.Feed != nil {
		s.unsubscribe = opts.Feed.Subscribe(feed.Any, func(snap ports.Snapshot) {
			s.invalidateReport(snap.OrganizationID, snap.ProjectID)
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	const project = "/api/orgs/{org}/projects/{project}"
	route(mux, "/api/orgs", methods{http.MethodPost: s.handleCreateOrganization})
	route(mux, "/api/orgs/{org}/projects", methods{
		http.MethodGet:  s.handleListProjects,
		http.MethodPost: s.handleCreateProject,
	})
	route(mux, project+"/statistics", methods{http.MethodGet: s.handleStatistics})
	route(mux, project+"/breakdown", methods{http.MethodGet: s.handleBreakdown})
	route(mux, project+"/categories", methods{http.MethodGet: s.handleListCategories})
	route(mux, project+"/categories/{id}", methods{http.MethodPut: s.handleUpdateCategory})
	route(mux, project+"/transactions", methods{
		http.MethodGet:  s.handleListTransactions,
		http.MethodPost: s.handleCreateTransaction,
	})
	route(mux, project+"/transactions/{id}", methods{
		http.MethodGet:    s.handleGetTransaction,
		http.MethodPut:    s.handleUpdateTransaction,
		http.MethodDelete: s.handleDeleteTransaction,
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	}, http.MethodPost, http.MethodPut, http.MethodDelete)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = headers.Middleware(handler)
	handler = s.trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

type methods map[string]http.HandlerFunc

// route registers pattern for every method in m. Other methods get a JSON
// 405 listing the allowed ones.
func route(mux *http.ServeMux, pattern string, m methods) {
	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		h, ok := m[r.Method]
		if !ok && r.Method == http.MethodHead {
			h, ok = m[http.MethodGet]
		}
		if !ok {
			MethodNotAllowedError(allow).Write(w)
			return
		}
		h(w, r)
	})
}

// Shutdown stops background routines then the HTTP server. Only the first
// call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes request counters.
func (s *Server) Metrics() trace.Metrics {
	return s.trace.GetMetrics()
}

func reportKey(orgID, projectID string) string {
	return orgID + "/" + projectID + "/"
}

func (s *Server) invalidateReport(orgID, projectID string) {
	key := reportKey(orgID, projectID)
	s.genMu.Lock()
	s.gens[key]++
	n := s.reports.DeletePrefix(key)
	s.genMu.Unlock()
	if n > 0 {
		s.logger.Debug("Report cache invalidated", log.FieldOrganizationID, orgID, log.FieldProjectID, projectID)
	}
}

// report returns the cached report of a project, computing it on a miss or
// when budgets were imported since it was cached.
func (s *Server) report(ctx context.Context, orgID, projectID string) (services.ProjectReport, error) {
	key := reportKey(orgID, projectID)
	syncedAt, syncErr := s.svc.CategoriesSyncedAt(ctx)
	if syncErr != nil {
		s.logger.WarnContext(ctx, "Failed to read budget sync time", log.FieldError, syncErr.Error())
	}
	if c, ok := s.reports.Get(key); ok && syncErr == nil && c.syncedAt.Equal(syncedAt) {
		return c.report, nil
	}

	s.genMu.Lock()
	gen := s.gens[key]
	s.genMu.Unlock()

	r, err := s.svc.ProjectStatistics(ctx, orgID, projectID)
	if err != nil {
		return services.ProjectReport{}, err
	}
	if syncErr != nil {
		return r, nil
	}

	s.genMu.Lock()
	if s.gens[key] == gen {
		s.reports.Set(key, cachedReport{report: r, syncedAt: syncedAt})
	}
	s.genMu.Unlock()
	return r, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Payload(map[string]string{"status": "ready"}).Write(w)
}
