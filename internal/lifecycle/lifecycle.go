// Package lifecycle implements the Supervisor: the agent's five-state
// machine, exclusive owner of the Identity, the validated Configuration,
// and the external collaborator handles (storage, task executor,
// network). Startup and shutdown follow an ordered contract; state
// reads take a brief lock and never hold it across a suspension point.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/p2p-agent/internal/config"
	"github.com/cuemby/p2p-agent/internal/diagnostics"
	"github.com/cuemby/p2p-agent/internal/identity"
	"github.com/cuemby/p2p-agent/internal/log"
	"github.com/cuemby/p2p-agent/internal/metadata"
	"github.com/cuemby/p2p-agent/internal/metrics"
	"github.com/cuemby/p2p-agent/pkg/types"
)

// Storage is the subset of the storage collaborator the Supervisor
// drives directly.
type Storage interface {
	Shutdown(ctx context.Context) error
	HealthProbe(ctx context.Context) error
}

// TaskExecutor is the subset of the task executor collaborator the
// Supervisor drives directly.
type TaskExecutor interface {
	Drain(ctx context.Context) error
}

// Network is the subset of the network collaborator the Supervisor
// drives directly.
type Network interface {
	GracefulShutdown(ctx context.Context) error
	PeerCount() int
}

// StorageFactory constructs and initializes the Storage collaborator.
type StorageFactory func(ctx context.Context, cfg types.Configuration) (Storage, error)

// TaskExecutorFactory constructs and initializes the TaskExecutor collaborator.
type TaskExecutorFactory func(ctx context.Context, cfg types.Configuration) (TaskExecutor, error)

// NetworkFactory constructs and starts the Network collaborator,
// binding cfg.ListenPort and dialing cfg.BootstrapNodes.
type NetworkFactory func(ctx context.Context, cfg types.Configuration, nodeID string) (Network, error)

// InvalidTransitionError is returned by any attempted transition not
// drawn in the state diagram.
type InvalidTransitionError struct {
	From, To types.LifecycleState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: invalid transition %s -> %s", e.From, e.To)
}

const (
	defaultSubsystemTimeout = 10 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	DataDir    string
	ConfigPath string

	// ApplyOverrides is called on the loaded Configuration before
	// validation, the hook CLI flag overrides are threaded through
	// (the highest-precedence source in the config resolver's order).
	ApplyOverrides func(types.Configuration) types.Configuration

	NewStorage      StorageFactory
	NewTaskExecutor TaskExecutorFactory
	NewNetwork      NetworkFactory

	// SubsystemTimeout bounds each collaborator's initialization step.
	// Defaults to 10s.
	SubsystemTimeout time.Duration
	// ShutdownTimeout bounds the entire drain-and-stop sequence.
	// Defaults to 5s.
	ShutdownTimeout time.Duration
}

// Supervisor drives the lifecycle state machine.
type Supervisor struct {
	opts Options

	mu         sync.RWMutex
	state      types.LifecycleState
	startedAt  *time.Time
	identity   *identity.Identity
	cfg        types.Configuration
	lastReport types.DiagnosticReport

	storage  Storage
	executor TaskExecutor
	network  Network
}

// New creates a Supervisor in the Stopped state.
func New(opts Options) *Supervisor {
	if opts.SubsystemTimeout <= 0 {
		opts.SubsystemTimeout = defaultSubsystemTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Supervisor{opts: opts, state: types.StateStopped}
}

// State returns a point-in-time snapshot of the current lifecycle state.
func (s *Supervisor) State() types.LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StartedAt returns the instant the supervisor last entered Active, or
// nil if it is not currently Active.
func (s *Supervisor) StartedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Configuration returns the validated, immutable Configuration produced
// at startup. Zero value until Start has validated the configuration.
func (s *Supervisor) Configuration() types.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// NodeID returns the agent's node ID, empty before identity is loaded.
func (s *Supervisor) NodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return identity.NodeID(s.identity)
}

// DiagnosticReport returns the most recent startup diagnostic report.
func (s *Supervisor) DiagnosticReport() types.DiagnosticReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Metadata computes the current NodeMetadata snapshot.
func (s *Supervisor) Metadata() types.NodeMetadata {
	s.mu.RLock()
	state, startedAt, id := s.state, s.startedAt, s.identity
	s.mu.RUnlock()

	nodeID := ""
	if id != nil {
		nodeID = identity.NodeID(id)
	}
	return metadata.Snapshot(nodeID, state, startedAt, time.Now().UTC())
}

// PeerCount reports the network collaborator's current peer count, or 0
// before the network is up.
func (s *Supervisor) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.network == nil {
		return 0
	}
	return s.network.PeerCount()
}

func (s *Supervisor) transition(from, to types.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return &InvalidTransitionError{From: s.state, To: to}
	}
	s.state = to
	metrics.LifecycleTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	metrics.LifecycleState.WithLabelValues(string(from)).Set(0)
	metrics.LifecycleState.WithLabelValues(string(to)).Set(1)
	return nil
}

// Start runs the full startup contract: config resolution, identity
// load-or-create, startup diagnostics, and ordered collaborator
// initialization, ending in the Active state. Any failure leaves the
// supervisor in whatever state it reached and returns an error; the
// caller is expected to exit the process.
func (s *Supervisor) Start(ctx context.Context) error {
	logger := log.WithComponent("lifecycle")

	if err := s.transition(types.StateStopped, types.StateInitializing); err != nil {
		return err
	}

	cfg, err := config.Load(s.opts.ConfigPath, s.opts.DataDir)
	if err != nil {
		logger.Error().Err(err).Msg("config load failed")
		return fmt.Errorf("lifecycle: load config: %w", err)
	}
	if s.opts.ApplyOverrides != nil {
		cfg = s.opts.ApplyOverrides(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error().Err(err).Msg("config validation failed")
		return fmt.Errorf("lifecycle: validate config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	id, err := identity.LoadOrCreate(s.opts.DataDir)
	if err != nil {
		logger.Error().Err(err).Msg("identity load failed")
		return fmt.Errorf("lifecycle: load identity: %w", err)
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	report := diagnostics.Run(ctx, diagnostics.Options{
		StoragePath: cfg.StoragePath,
		ListenPort:  cfg.ListenPort,
		MaxMemoryMB: cfg.MaxMemoryMB,
		IdentityDir: s.opts.DataDir,
	})
	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()
	for _, r := range report.Results {
		metrics.DiagnosticSeverity.WithLabelValues(r.Name).Set(float64(r.Severity))
	}
	if report.Overall == types.SeverityCritical {
		logger.Error().Str("overall", report.OverallName).Msg("startup diagnostics reported CRITICAL, refusing to continue")
		return fmt.Errorf("lifecycle: startup diagnostics critical")
	}

	if err := s.transition(types.StateInitializing, types.StateRegistering); err != nil {
		return err
	}

	if err := s.initCollaborators(ctx, cfg, identity.NodeID(id)); err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	return s.transition(types.StateRegistering, types.StateActive)
}

// initCollaborators brings up storage, task executor, and network in
// that order, each bounded by SubsystemTimeout. A failure rolls back
// whatever was already initialized, in reverse order, before returning.
func (s *Supervisor) initCollaborators(ctx context.Context, cfg types.Configuration, nodeID string) error {
	logger := log.WithComponent("lifecycle")

	storage, err := withTimeout(ctx, s.opts.SubsystemTimeout, func(ctx context.Context) (Storage, error) {
		return s.opts.NewStorage(ctx, cfg)
	})
	if err != nil {
		logger.Error().Err(err).Msg("storage initialization failed")
		return fmt.Errorf("lifecycle: init storage: %w", err)
	}

	executor, err := withTimeout(ctx, s.opts.SubsystemTimeout, func(ctx context.Context) (TaskExecutor, error) {
		return s.opts.NewTaskExecutor(ctx, cfg)
	})
	if err != nil {
		logger.Error().Err(err).Msg("task executor initialization failed, rolling back storage")
		_ = storage.Shutdown(context.Background())
		return fmt.Errorf("lifecycle: init task executor: %w", err)
	}

	network, err := withTimeout(ctx, s.opts.SubsystemTimeout, func(ctx context.Context) (Network, error) {
		return s.opts.NewNetwork(ctx, cfg, nodeID)
	})
	if err != nil {
		logger.Error().Err(err).Msg("network initialization failed, rolling back task executor and storage")
		_ = executor.Drain(context.Background())
		_ = storage.Shutdown(context.Background())
		return fmt.Errorf("lifecycle: init network: %w", err)
	}

	s.mu.Lock()
	s.storage, s.executor, s.network = storage, executor, network
	s.mu.Unlock()
	return nil
}

// Shutdown runs the full shutdown contract: stop accepting new work at
// the network layer, drain the task executor, then close storage, each
// against a single shared deadline computed from ShutdownTimeout.
// Calling Shutdown when already ShuttingDown or Stopped is a no-op
// returning nil; from Initializing or Registering it returns an
// *InvalidTransitionError and leaves the state unchanged.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	logger := log.WithComponent("lifecycle")

	if err := s.transition(types.StateActive, types.StateShuttingDown); err != nil {
		switch s.State() {
		case types.StateShuttingDown, types.StateStopped:
			return nil
		default:
			return err
		}
	}

	timer := metrics.NewTimer()
	dctx, cancel := context.WithDeadline(ctx, time.Now().Add(s.opts.ShutdownTimeout))
	defer cancel()

	s.mu.RLock()
	network, executor, storage := s.network, s.executor, s.storage
	s.mu.RUnlock()

	if network != nil {
		if err := network.GracefulShutdown(dctx); err != nil {
			logger.Warn().Err(err).Msg("network graceful shutdown did not complete cleanly")
		}
	}
	if executor != nil {
		if err := executor.Drain(dctx); err != nil {
			logger.Warn().Err(err).Msg("task executor drain did not complete cleanly, in-flight tasks abandoned")
		}
	}
	if storage != nil {
		if err := storage.Shutdown(dctx); err != nil {
			logger.Warn().Err(err).Msg("storage shutdown did not complete cleanly")
		}
	}

	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	timer.ObserveDuration(metrics.ShutdownDuration)
	return s.transition(types.StateShuttingDown, types.StateStopped)
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(cctx)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		return o.val, o.err
	case <-cctx.Done():
		return zero, fmt.Errorf("timed out after %s: %w", timeout, cctx.Err())
	}
}
