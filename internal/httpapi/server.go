package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/you/poe-chatwatch/internal/metrics"
	"github.com/you/poe-chatwatch/internal/watch"
)

// Store exposes queue sizes only; chat content is never served.
type Store interface {
	Counts() map[string]int
	MaxLogs() int
}

type Tail interface {
	Path() string
	Offset() int64
}

type Loop interface {
	State() watch.State
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      Store
	tail       Tail
	loop       Loop
	opts       Options
	limiter    *ipRateLimiter
	started    time.Time
}

type Options struct {
	Addr            string
	RateLimitRPS    int
	RateLimitBurst  int
	EnableAccessLog bool
	Metrics         *metrics.Metrics
	Build           BuildInfo
	ConfigSnapshot  any
}

func New(store Store, tail Tail, loop Loop, opts Options) *Server {
	srv := &Server{
		mux:     http.NewServeMux(),
		store:   store,
		tail:    tail,
		loop:    loop,
		opts:    opts,
		limiter: newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		started: time.Now(),
	}

	srv.mux.HandleFunc("/healthz", srv.handleHealthz)
	srv.mux.HandleFunc("/info", srv.handleInfo)
	srv.mux.HandleFunc("/status", srv.handleStatus)
	if opts.ConfigSnapshot != nil {
		srv.mux.HandleFunc("/config", srv.handleConfig)
	}
	if opts.Metrics != nil {
		srv.mux.Handle("/metrics", opts.Metrics.Handler())
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.wrap(srv.mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Mux lets other packages register extra routes before Start.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler returns the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)
		route := routeLabel(r.URL.Path)

		if !s.limiter.Allow(remoteIP(r)) {
			s.opts.Metrics.IncRateLimited()
			http.Error(rec, "rate limit exceeded", http.StatusTooManyRequests)
		} else {
			next.ServeHTTP(rec, r)
		}

		dur := time.Since(start)
		s.opts.Metrics.ObserveRequest(route, r.Method, rec.Status(), dur)
		if s.opts.EnableAccessLog {
			slog.Info("http access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.Bytes(),
				"dur_ms", dur.Milliseconds(),
				"ip", remoteIP(r),
			)
		}
	})
}

func routeLabel(path string) string {
	switch path {
	case "/healthz", "/info", "/status", "/config", "/metrics", "/admin/rescan", "/admin/healthz":
		return path
	default:
		return "other"
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	State     string         `json:"state"`
	Path      string         `json:"path"`
	Cursor    int64          `json:"cursor"`
	MaxLogs   int            `json:"max_logs"`
	Counts    map[string]int `json:"counts"`
	UptimeSec int64          `json:"uptime_sec"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		MaxLogs:   s.store.MaxLogs(),
		Counts:    s.store.Counts(),
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if s.loop != nil {
		resp.State = s.loop.State().String()
	}
	if s.tail != nil {
		resp.Path = s.tail.Path()
		resp.Cursor = s.tail.Offset()
	}
	writeJSON(w, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.opts.ConfigSnapshot)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) Start() error {
	log.Printf("http api listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
