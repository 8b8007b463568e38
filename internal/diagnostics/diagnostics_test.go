package diagnostics

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cuemby/p2p-agent/pkg/types"
)

func TestRunOrdersResultsDeterministically(t *testing.T) {
	opts := Options{
		StoragePath: t.TempDir(),
		ListenPort:  freePort(t),
		MaxMemoryMB: 512,
		IdentityDir: t.TempDir(),
	}

	report := Run(context.Background(), opts)
	if len(report.Results) != 5 {
		t.Fatalf("len(Results) = %d, want 5", len(report.Results))
	}

	wantOrder := []string{"disk", "memory", "listen_port", "network", "crypto_self_test"}
	for i, name := range wantOrder {
		if report.Results[i].Name != name {
			t.Errorf("Results[%d].Name = %q, want %q", i, report.Results[i].Name, name)
		}
	}
}

func TestRunOverallSeverityIsWorstCheck(t *testing.T) {
	opts := Options{
		StoragePath: t.TempDir(),
		ListenPort:  freePort(t),
		MaxMemoryMB: 512,
		IdentityDir: t.TempDir(),
	}

	report := Run(context.Background(), opts)
	worst := types.SeverityOK
	for _, r := range report.Results {
		if r.Severity > worst {
			worst = r.Severity
		}
	}
	if report.Overall != worst {
		t.Errorf("Overall = %v, want %v (worst of individual checks)", report.Overall, worst)
	}
}

func TestPortCheckDetectsInUsePort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	res := (portCheck{port: port}).Check(context.Background())
	if res.Severity != types.SeverityCritical {
		t.Errorf("Severity = %v, want CRITICAL for an already-bound port", res.Severity)
	}
}

func TestCryptoCheckPassesWithFreshIdentity(t *testing.T) {
	res := (cryptoCheck{dir: filepath.Join(t.TempDir(), "identity")}).Check(context.Background())
	if res.Severity != types.SeverityOK {
		t.Errorf("Severity = %v, want OK, message: %s", res.Severity, res.Message)
	}
}

func TestMemoryCheckThresholds(t *testing.T) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		t.Skipf("unable to read host memory: %v", err)
	}
	availMB := int(vm.Available / (1 << 20))
	if availMB == 0 {
		t.Skip("host reports zero available memory")
	}

	// OK: target at or below currently available memory.
	okRes := (memoryCheck{maxMB: availMB}).Check(context.Background())
	if okRes.Severity != types.SeverityOK {
		t.Errorf("Severity = %v, want OK when max_memory_mb <= available", okRes.Severity)
	}

	// CRITICAL: target more than double the currently available memory.
	critRes := (memoryCheck{maxMB: availMB*4 + 16}).Check(context.Background())
	if critRes.Severity != types.SeverityCritical {
		t.Errorf("Severity = %v, want CRITICAL when available < max_memory_mb/2", critRes.Severity)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
