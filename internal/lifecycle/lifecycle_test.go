package lifecycle

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cuemby/p2p-agent/pkg/types"
)

type stubStorage struct {
	shutdownErr    error
	shutdownCalled bool
}

func (s *stubStorage) Shutdown(ctx context.Context) error {
	s.shutdownCalled = true
	return s.shutdownErr
}
func (s *stubStorage) HealthProbe(ctx context.Context) error { return nil }

type stubExecutor struct {
	drainErr error
	drained  bool
}

func (e *stubExecutor) Drain(ctx context.Context) error {
	e.drained = true
	return e.drainErr
}

type stubNetwork struct{ peers int }

func (n *stubNetwork) GracefulShutdown(ctx context.Context) error { return nil }
func (n *stubNetwork) PeerCount() int                             { return n.peers }

func testOptions(t *testing.T) Options {
	t.Helper()
	dataDir := t.TempDir()
	return Options{
		DataDir:    dataDir,
		ConfigPath: filepath.Join(dataDir, "missing-config.yaml"),
		NewStorage: func(ctx context.Context, cfg types.Configuration) (Storage, error) {
			return &stubStorage{}, nil
		},
		NewTaskExecutor: func(ctx context.Context, cfg types.Configuration) (TaskExecutor, error) {
			return &stubExecutor{}, nil
		},
		NewNetwork: func(ctx context.Context, cfg types.Configuration, nodeID string) (Network, error) {
			return &stubNetwork{}, nil
		},
		SubsystemTimeout: 2 * time.Second,
		ShutdownTimeout:  2 * time.Second,
	}
}

func TestStartReachesActiveFromStopped(t *testing.T) {
	opts := testOptions(t)
	t.Setenv("P2P_STORAGE_PATH", filepath.Join(opts.DataDir, "data"))
	sup := New(opts)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	if sup.State() != types.StateActive {
		t.Errorf("State() = %s, want Active", sup.State())
	}
	if sup.StartedAt() == nil {
		t.Error("StartedAt() is nil after reaching Active")
	}
	if sup.NodeID() == "" {
		t.Error("NodeID() is empty after Start")
	}
}

func TestStartReachesActiveWithNoStorageOverride(t *testing.T) {
	// No P2P_STORAGE_PATH, no config file, no flag overrides: a bare
	// cold start must still derive storage_path from DataDir and reach
	// Active, the way an operator running "p2p-agent start" with zero
	// configuration expects.
	sup := New(testOptions(t))

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	if sup.State() != types.StateActive {
		t.Errorf("State() = %s, want Active", sup.State())
	}
	if sup.Configuration().StoragePath == "" {
		t.Error("Configuration().StoragePath is empty, want it derived from DataDir")
	}
}

func TestShutdownFromStoppedIsNoOp(t *testing.T) {
	sup := New(testOptions(t))
	if err := sup.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() from Stopped = %v, want nil (no-op)", err)
	}
	if sup.State() != types.StateStopped {
		t.Errorf("State() = %s, want Stopped unchanged", sup.State())
	}
}

func TestStartThenShutdownReturnsToStopped(t *testing.T) {
	opts := testOptions(t)
	t.Setenv("P2P_STORAGE_PATH", filepath.Join(opts.DataDir, "data"))
	sup := New(opts)

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	if err := sup.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown(): %v", err)
	}
	if sup.State() != types.StateStopped {
		t.Errorf("State() = %s, want Stopped after shutdown", sup.State())
	}
	if sup.StartedAt() != nil {
		t.Error("StartedAt() should be cleared after shutdown")
	}
}

func TestStartRollsBackOnNetworkFailure(t *testing.T) {
	opts := testOptions(t)
	t.Setenv("P2P_STORAGE_PATH", filepath.Join(opts.DataDir, "data"))

	storage := &stubStorage{shutdownErr: nil}
	executor := &stubExecutor{}
	opts.NewStorage = func(ctx context.Context, cfg types.Configuration) (Storage, error) {
		return storage, nil
	}
	opts.NewTaskExecutor = func(ctx context.Context, cfg types.Configuration) (TaskExecutor, error) {
		return executor, nil
	}
	opts.NewNetwork = func(ctx context.Context, cfg types.Configuration, nodeID string) (Network, error) {
		return nil, errors.New("bind failed")
	}

	sup := New(opts)
	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("Start() = nil, want error when network initialization fails")
	}
	if sup.State() != types.StateRegistering {
		t.Errorf("State() = %s, want Registering (startup does not roll back lifecycle state itself)", sup.State())
	}
	if !executor.drained {
		t.Error("task executor was not drained during rollback")
	}
	if !storage.shutdownCalled {
		t.Error("storage was not shut down during rollback")
	}
}

func TestDiagnosticsCriticalBlocksActive(t *testing.T) {
	opts := testOptions(t)
	// Holding listen_port makes the listen_port check report CRITICAL
	// while the configuration itself still passes validation.
	ln, lerr := net.Listen("tcp", ":0")
	if lerr != nil {
		t.Fatalf("listen: %v", lerr)
	}
	defer ln.Close()
	t.Setenv("P2P_STORAGE_PATH", filepath.Join(opts.DataDir, "data"))
	t.Setenv("P2P_LISTEN_PORT", strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	sup := New(opts)

	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("Start() = nil, want error when diagnostics report CRITICAL")
	}
	if sup.DiagnosticReport().Overall != types.SeverityCritical {
		t.Errorf("DiagnosticReport().Overall = %v, want CRITICAL", sup.DiagnosticReport().Overall)
	}
	if sup.State() == types.StateActive {
		t.Error("State() = Active, want anything but Active when diagnostics are CRITICAL")
	}
}
