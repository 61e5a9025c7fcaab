// Package serve exposes the output directory over HTTP for local preview,
// together with health and metrics endpoints.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/history"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
)

// Defaults for the listen address.
const (
	DefaultHost = "localhost"
	DefaultPort = 9000
)

// BuildLister is the part of the history store the server reads.
type BuildLister interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Get(ctx context.Context, id string) (history.Record, error)
}

// Server serves Root on Addr.
type Server struct {
	Root string
	Addr string
	// Registry, when set, is exposed on /metrics.
	Registry *prometheus.Registry
	// History, when set, is exposed on /_sitepress/builds.
	History BuildLister
	Logger  *slog.Logger

	ready chan string
}

// New returns a server for root on host:port.
func New(root, host string, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Root:   root,
		Addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		Logger: logger,
		ready:  make(chan string, 1),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.Registry != nil {
		r.Handle("/metrics", metrics.HTTPHandler(s.Registry))
	}
	if s.History != nil {
		r.Get("/_sitepress/builds", s.handleBuilds)
		r.Get("/_sitepress/builds/{id}", s.handleBuild)
	}
	r.Handle("/*", http.FileServer(http.Dir(s.Root)))
	return r
}

type buildJSON struct {
	BuildID    string         `json:"build_id"`
	Outcome    string         `json:"outcome"`
	Start      time.Time      `json:"start"`
	DurationMS int64          `json:"duration_ms"`
	Written    int            `json:"written"`
	Removed    int            `json:"removed"`
	Skipped    int            `json:"skipped"`
	Error      string         `json:"error,omitempty"`
	Artifacts  map[string]int `json:"artifacts,omitempty"`
}

func toJSON(rec history.Record) buildJSON {
	return buildJSON{
		BuildID:    rec.BuildID,
		Outcome:    rec.Outcome,
		Start:      rec.Start,
		DurationMS: rec.Duration().Milliseconds(),
		Written:    rec.Written,
		Removed:    rec.Removed,
		Skipped:    rec.Skipped,
		Error:      rec.Error,
		Artifacts:  rec.Artifacts,
	}
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	errs := ferrors.NewHTTPErrorAdapter(s.Logger)
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs.WriteErrorResponse(w, r, ferrors.ValidationError("limit must be a positive integer").
				WithContext("limit", v).
				Warning().
				Build())
			return
		}
		limit = n
	}
	records, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		errs.WriteErrorResponse(w, r, err)
		return
	}
	out := make([]buildJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toJSON(rec))
	}
	writeJSON(w, out)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	rec, err := s.History.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ferrors.NewHTTPErrorAdapter(s.Logger).WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, toJSON(rec))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// logRequests logs method, path, status and duration at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(ww.Status()),
			logfields.Duration(time.Since(start)))
	})
}

// Run listens on Addr and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to listen").
			WithContext("addr", s.Addr).
			Build()
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.Logger.Info("Serving output", logfields.Path(s.Root), logfields.Addr("http://"+ln.Addr().String()))
	if s.ready != nil {
		select {
		case s.ready <- ln.Addr().String():
		default:
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryMonitor, "server stopped").Build()
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryMonitor, "server shutdown").Build()
		}
		s.Logger.Info("Server stopped")
		return nil
	}
}

// Ready yields the bound address once Run is listening.
func (s *Server) Ready() <-chan string { return s.ready }
