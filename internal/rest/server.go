// Package rest serves the seer's read-only query API:
//
//	GET /answer             JSON string, 503 unless Available
//	GET /perspective_index  JSON integer, 503 unless Available
//	GET /service_state      JSON string, always 200
//
// Every body is JSON sent as Content-type text/plain. Unknown paths get 404.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"tools.zach/dev/seer/internal/metrics"
)

// Route paths.
const (
	PathAnswer           = "/answer"
	PathPerspectiveIndex = "/perspective_index"
	PathServiceState     = "/service_state"
)

// DefaultShutdownTimeout bounds [Server.Shutdown].
const DefaultShutdownTimeout = 5 * time.Second

// Oracle is the state the server reports on.
type Oracle interface {
	StateName() string
	Answer() (string, error)
	PerspectiveIndex() (int, error)
}

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Server is the query API. Its listen loop runs on the caller's goroutine;
// [Server.Shutdown] may be called from any other goroutine.
type Server struct {
	srv     *http.Server
	oracle  Oracle
	results chan<- error
	timeout time.Duration
	once    sync.Once
}

// New returns a Server for addr. Shutdown reports its outcome on results,
// which should have room for one value.
func New(addr string, oracle Oracle, results chan<- error) *Server {
	s := &Server{
		oracle:  oracle,
		results: results,
		timeout: DefaultShutdownTimeout,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetShutdownTimeout overrides [DefaultShutdownTimeout].
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get(PathAnswer, s.handleAnswer)
	r.Get(PathPerspectiveIndex, s.handlePerspectiveIndex)
	r.Get(PathServiceState, s.handleServiceState)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, "Unknown GET endpoint for the seer queries: "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, fmt.Sprintf("Unsupported method %s for %s", r.Method, r.URL.Path))
	})
	return r
}

// ListenAndServe listens on the configured address and serves until
// Shutdown. A clean stop returns nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. A clean stop returns nil.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("REST server started", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Debug("REST server stopped")
	return nil
}

// Shutdown stops the listen loop, waits for in-flight requests up to the
// shutdown timeout and reports nil or the error on the results channel. Only
// the first call has any effect.
func (s *Server) Shutdown() {
	s.once.Do(func() {
		slog.Info("REST server is stopping")
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		err := s.srv.Shutdown(ctx)
		if err != nil {
			slog.Error("could not shut down the REST listener", "error", err)
		} else {
			slog.Debug("REST listener shut down")
		}

		select {
		case s.results <- err:
		default:
			slog.Warn("shutdown result dropped, channel full")
		}
	})
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func (s *Server) handleAnswer(w http.ResponseWriter, _ *http.Request) {
	answer, err := s.oracle.Answer()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handlePerspectiveIndex(w http.ResponseWriter, _ *http.Request) {
	idx, err := s.oracle.PerspectiveIndex()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (s *Server) handleServiceState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.StateName())
}

// writeJSON encodes payload as the body with a text/plain content type.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response", "error", err)
		status = http.StatusInternalServerError
		data = []byte(`"internal error"`)
	}
	w.Header().Set("Content-type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("write response", "error", err)
		return
	}
	slog.Debug("REST response", "status", status, "body", string(data))
}

// ///////////////////////////////////////////////
// Middleware
// ///////////////////////////////////////////////

// instrument logs each request and records it in the metrics registry under
// its route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, status, time.Since(start))
		slog.Debug("REST request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start))
	})
}
