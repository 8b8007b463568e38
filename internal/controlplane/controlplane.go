// Package controlplane is the process-level operator surface: a
// loopback-bound HTTP server for status and readiness, PID file
// stewardship with stale-PID reclamation, and signal-driven graceful
// shutdown. The HTTP server shape (mux, Serve on a bound listener with
// explicit timeouts, JSON handlers) follows the package's health-server
// convention; the supervisor itself is held only as a read-only
// reference, never owned, so handlers can never reach in and mutate
// lifecycle state.
package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/p2p-agent/internal/metrics"
	"github.com/cuemby/p2p-agent/pkg/types"
)

// Supervisor is the read-only view the control plane needs of the
// lifecycle supervisor. It deliberately excludes Start/Shutdown:
// shutdown is signaled, never invoked directly from an HTTP handler.
type Supervisor interface {
	State() types.LifecycleState
	Metadata() types.NodeMetadata
	DiagnosticReport() types.DiagnosticReport
	PeerCount() int
}

// Server is the localhost HTTP control surface.
type Server struct {
	sup Supervisor
	srv *http.Server
}

// NewServer builds the HTTP mux for the node/info, node/metadata,
// node/peers, health, health/ready, and metrics endpoints.
func NewServer(sup Supervisor, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{sup: sup}

	mux.HandleFunc("/api/v1/node/info", s.handleMetadata)
	mux.HandleFunc("/api/v1/node/metadata", s.handleMetadata)
	mux.HandleFunc("/api/v1/node/peers", s.handlePeers)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      requestIDMiddleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start binds the loopback listener and begins serving in the
// background. It returns once the listener is bound, so callers know
// the address is live before proceeding.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("controlplane: listen %s: %w", s.srv.Addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "controlplane: http server stopped: %v\n", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Metadata())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	md := s.sup.Metadata()
	count := s.sup.PeerCount()
	metrics.PeerCount.Set(float64(count))
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":    md.NodeID,
		"state":      md.State,
		"peer_count": count,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.sup.State()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if state == types.StateActive {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprint(w, string(state))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.sup.DiagnosticReport()
	status := http.StatusOK
	if report.Overall == types.SeverityCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// requestIDMiddleware stamps every request with a unique ID, honoring
// one supplied by the caller, and echoes it back on the response so
// operators can correlate a curl/status invocation with a log line.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PIDFile stewards the configured PID file: acquiring it at startup
// (rejecting a live duplicate instance, reclaiming a stale one), and
// removing it on clean shutdown.
type PIDFile struct {
	path string
}

// NewPIDFile returns a handle for the PID file at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// ErrAlreadyRunning is returned by Acquire when a live process already
// holds the PID file.
var ErrAlreadyRunning = errors.New("controlplane: another instance is already running")

// Acquire writes the current process's PID to the file, after checking
// for and reclaiming a stale file left by a crashed instance.
func (p *PIDFile) Acquire() error {
	data, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && processLive(pid) {
			return ErrAlreadyRunning
		}
		// stale; fall through to reclaim
	case os.IsNotExist(err):
		// no existing file
	default:
		return fmt.Errorf("controlplane: read pid file %s: %w", p.path, err)
	}

	return os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// Release removes the PID file. Called on clean shutdown.
func (p *PIDFile) Release() error {
	err := os.Remove(p.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func processLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes liveness
	// without actually delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
