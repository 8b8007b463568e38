// Package diagnostics runs the startup diagnostic suite: a fixed,
// deterministically ordered set of checks covering disk space, memory
// headroom, listen port availability, network reachability, and the
// cryptographic identity self-test. The Checker interface (Name/Check)
// generalizes a liveness-probe shape to one-shot startup checks.
package diagnostics

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cuemby/p2p-agent/internal/identity"
	"github.com/cuemby/p2p-agent/pkg/types"
)

// Checker is a single diagnostic check.
type Checker interface {
	Name() string
	Check(ctx context.Context) types.DiagnosticResult
}

// Options configures the checks that need operator-supplied context.
type Options struct {
	StoragePath     string
	ListenPort      int
	MaxMemoryMB     int
	ReachabilityDNS []string // hostnames to resolve; defaults applied if empty
	IdentityDir     string
}

// DefaultReachabilityTargets is used when Options.ReachabilityDNS is empty.
var DefaultReachabilityTargets = []string{"one.one.one.one", "dns.google"}

// Run executes the fixed suite of checks concurrently but assembles the
// report in a stable, deterministic order (disk, memory, port, network,
// crypto) regardless of completion order.
func Run(ctx context.Context, opts Options) types.DiagnosticReport {
	checks := []Checker{
		diskCheck{path: opts.StoragePath},
		memoryCheck{maxMB: opts.MaxMemoryMB},
		portCheck{port: opts.ListenPort},
		networkCheck{targets: reachabilityTargets(opts.ReachabilityDNS)},
		cryptoCheck{dir: opts.IdentityDir},
	}

	results := make([]types.DiagnosticResult, len(checks))
	done := make(chan struct{}, len(checks))

	for i, c := range checks {
		i, c := i, c
		go func() {
			results[i] = c.Check(ctx)
			done <- struct{}{}
		}()
	}
	for range checks {
		<-done
	}

	report := types.DiagnosticReport{Results: results, Overall: types.SeverityOK, OverallName: types.SeverityOK.String()}
	for _, r := range results {
		if r.Severity > report.Overall {
			report.Overall = r.Severity
		}
	}
	report.OverallName = report.Overall.String()
	return report
}

func reachabilityTargets(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return DefaultReachabilityTargets
}

func result(name string, sev types.Severity, message, measured string) types.DiagnosticResult {
	return types.DiagnosticResult{
		Name:          name,
		Severity:      sev,
		SeverityName:  sev.String(),
		Message:       message,
		MeasuredValue: measured,
		CheckedAt:     time.Now().UTC(),
	}
}

type diskCheck struct{ path string }

func (d diskCheck) Name() string { return "disk" }

func (d diskCheck) Check(ctx context.Context) types.DiagnosticResult {
	path := d.path
	if path == "" {
		path = "."
	}
	// storage_path need not exist yet (the storage collaborator creates
	// it on open), so measure its nearest existing ancestor instead.
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return result("disk", types.SeverityCritical, fmt.Sprintf("unable to stat storage path: %v", err), "")
	}

	freeMiB := usage.Free / (1 << 20)
	measured := fmt.Sprintf("%.2f GiB free", float64(usage.Free)/(1<<30))

	switch {
	case freeMiB < 256:
		return result("disk", types.SeverityCritical, "less than 256 MiB free on storage volume", measured)
	case freeMiB < 1024:
		return result("disk", types.SeverityWarn, "less than 1 GiB free on storage volume", measured)
	default:
		return result("disk", types.SeverityOK, "sufficient disk space available", measured)
	}
}

type memoryCheck struct{ maxMB int }

func (m memoryCheck) Name() string { return "memory" }

func (m memoryCheck) Check(ctx context.Context) types.DiagnosticResult {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return result("memory", types.SeverityCritical, fmt.Sprintf("unable to read memory stats: %v", err), "")
	}

	availMB := vm.Available / (1 << 20)
	measured := fmt.Sprintf("%d MiB available", availMB)

	switch {
	case m.maxMB > 0 && availMB < uint64(m.maxMB)/2:
		return result("memory", types.SeverityCritical, "available memory is less than half of configured max_memory_mb", measured)
	case m.maxMB > 0 && availMB < uint64(m.maxMB):
		return result("memory", types.SeverityWarn, "available memory is below the configured max_memory_mb", measured)
	default:
		return result("memory", types.SeverityOK, "sufficient memory available", measured)
	}
}

type portCheck struct{ port int }

func (p portCheck) Name() string { return "listen_port" }

func (p portCheck) Check(ctx context.Context) types.DiagnosticResult {
	addr := fmt.Sprintf(":%d", p.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return result("listen_port", types.SeverityCritical, fmt.Sprintf("port %d is not available: %v", p.port, err), addr)
	}
	ln.Close()
	return result("listen_port", types.SeverityOK, "listen port is available", addr)
}

type networkCheck struct{ targets []string }

func (n networkCheck) Name() string { return "network" }

func (n networkCheck) Check(ctx context.Context) types.DiagnosticResult {
	resolver := net.DefaultResolver
	var lastErr error
	for _, target := range n.targets {
		if _, err := resolver.LookupHost(ctx, target); err == nil {
			return result("network", types.SeverityOK, "network reachability check succeeded", target)
		} else {
			lastErr = err
		}
	}
	return result("network", types.SeverityWarn, fmt.Sprintf("all reachability targets failed, last error: %v", lastErr), "")
}

type cryptoCheck struct{ dir string }

func (c cryptoCheck) Name() string { return "crypto_self_test" }

func (c cryptoCheck) Check(ctx context.Context) types.DiagnosticResult {
	id, err := identity.LoadOrCreate(c.dir)
	if err != nil {
		return result("crypto_self_test", types.SeverityCritical, fmt.Sprintf("identity load failed: %v", err), "")
	}

	msg := []byte("diagnostics-self-test")
	sig := identity.Sign(id, msg)
	if !identity.Verify(id.PublicKey, msg, sig) {
		return result("crypto_self_test", types.SeverityCritical, "sign/verify round trip failed", "")
	}
	return result("crypto_self_test", types.SeverityOK, "ed25519 sign/verify self-test passed", "")
}
