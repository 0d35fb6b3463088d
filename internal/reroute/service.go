package reroute

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service wires the rule cache and resolver into HTTP request handling.
type Service struct {
	cfg Config
	log *zap.Logger

	cache    *Cache
	resolver *Resolver
	exclude  *excludeMatcher
	stats    *statsCollector
	now      func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewService(cfg Config, src RuleSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := NewCache(src, logger.Named("cache"), WithStoreTimeout(cfg.StoreTimeout()))
	exclude := cfg.Redirects.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	return &Service{
		cfg:      cfg,
		log:      logger,
		cache:    cache,
		resolver: NewResolver(cache),
		exclude:  newExcludeMatcher(exclude),
		stats:    newStatsCollector(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the initial rule fetch in the background and, if configured,
// the periodic stats log. It never waits on the store.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.cache.Start()
		if every := s.cfg.LogStatsEvery(); every > 0 {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.statsLoop(every)
			}()
		}
	})
}

func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.cache.Close()
	})
}

// Cache exposes the rule cache, mainly for status reporting.
func (s *Service) Cache() *Cache { return s.cache }

// Middleware redirects matching requests and hands everything else to next.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Intercept(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Intercept writes a redirect response when a rule matches r and reports
// whether it did. Excluded paths are never looked up.
func (s *Service) Intercept(w http.ResponseWriter, r *http.Request) bool {
	path := r.URL.Path
	if _, ok := s.exclude.Match(path); ok {
		s.stats.ObserveExcluded()
		setRerouteHeaders(w.Header(), "excluded")
		return false
	}

	out := s.resolve(path)
	s.stats.Observe(out)
	if !out.IsRedirect() {
		setRerouteHeaders(w.Header(), "pass")
		return false
	}

	s.log.Debug("redirect",
		zap.String("path", path),
		zap.String("destination", out.Destination),
		zap.Int("status", out.StatusCode),
	)
	setRerouteHeaders(w.Header(), "redirect")
	http.Redirect(w, r, out.Destination, out.StatusCode)
	return true
}

func (s *Service) resolve(path string) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			s.stats.ObserveRecovered()
			s.log.Error("redirect resolution panicked, passing through",
				zap.String("path", path),
				zap.Any("panic", p),
			)
			out = Outcome{Kind: PassThrough}
		}
	}()
	return s.resolver.Resolve(path, s.now())
}

// Handler is the standalone entry point: redirects, or a reverse proxy to
// server.origin for everything else.
func (s *Service) Handler() (http.Handler, error) {
	if s.cfg.Server.Origin == "" {
		return nil, fmt.Errorf("server.origin is required")
	}
	origin, err := url.Parse(s.cfg.Server.Origin)
	if err != nil {
		return nil, fmt.Errorf("server.origin: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.log.Warn("origin request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		setRerouteHeaders(w.Header(), "bad-gateway")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return s.Middleware(proxy), nil
}

func setRerouteHeaders(h http.Header, v string) {
	if v != "" {
		h.Set("X-Reroute", v)
	}
	// Custom headers are not readable by browser JS in a CORS context
	// unless exposed.
	ensureExposedHeader(h, "X-Reroute")
}

func ensureExposedHeader(h http.Header, name string) {
	if name == "" {
		return
	}

	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}

	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}

	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	ss := s.stats.Snapshot()
	ok, failed := s.cache.RefreshCounts()
	rules := s.cache.Current()

	fields := []zap.Field{
		zap.Int("rules", rules.Len()),
		zap.Time("fetchedAt", rules.FetchedAt),
		zap.Uint64("redirects", ss.Redirects),
		zap.Uint64("passes", ss.Passes),
		zap.Uint64("excluded", ss.Excluded),
		zap.Uint64("recovered", ss.Recovered),
		zap.Uint64("refreshOK", ok),
		zap.Uint64("refreshFailed", failed),
		zap.Int64("abandonedQueries", s.cache.AbandonedQueries()),
	}
	if rss, ok := processRSSBytes(); ok {
		fields = append(fields, zap.String("rss", formatBytes(rss)))
	}
	s.log.Info("stats", fields...)
}
