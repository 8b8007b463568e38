package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/p2p-agent/internal/config"
	"github.com/cuemby/p2p-agent/internal/controlplane"
	"github.com/cuemby/p2p-agent/internal/diagnostics"
	"github.com/cuemby/p2p-agent/internal/executor"
	"github.com/cuemby/p2p-agent/internal/identity"
	"github.com/cuemby/p2p-agent/internal/lifecycle"
	"github.com/cuemby/p2p-agent/internal/log"
	"github.com/cuemby/p2p-agent/internal/storage"
	"github.com/cuemby/p2p-agent/internal/transport"
	"github.com/cuemby/p2p-agent/pkg/types"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agent (the default action of p2p-agent)",
	RunE:  runStart,
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".p2p-agent")
	}
	return ".p2p-agent"
}

// controlPlanePort derives the loopback HTTP port from listen_port, one
// above it, so operators configuring only listen_port still get a
// deterministic, non-colliding control plane address.
func controlPlanePort(listenPort int) int {
	return listenPort + 1
}

func runStart(cmd *cobra.Command, args []string) error {
	dataDir := defaultDataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return withExitCode(1, fmt.Errorf("create data directory: %w", err))
	}

	configPath := flagConfigPath
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.yaml")
	}
	if err := config.EnsureDefaultFile(configPath); err != nil {
		return withExitCode(1, fmt.Errorf("materialize default config: %w", err))
	}

	if flagStartupDiagnostics {
		return runStartupDiagnosticsOnly(dataDir, configPath)
	}

	if flagDaemon && !controlplane.IsDaemonizedChild() {
		logFile := filepath.Join(dataDir, "p2p-agent.log")
		if err := controlplane.Daemonize(dataDir, logFile); err != nil {
			return withExitCode(1, err)
		}
		return nil
	}

	pidPath := flagPIDFile
	if pidPath == "" {
		pidPath = filepath.Join(dataDir, "p2p-agent.pid")
	}
	pidFile := controlplane.NewPIDFile(pidPath)
	if err := pidFile.Acquire(); err != nil {
		if err == controlplane.ErrAlreadyRunning {
			return withExitCode(4, err)
		}
		return withExitCode(1, err)
	}

	sup := lifecycle.New(lifecycle.Options{
		DataDir:    dataDir,
		ConfigPath: configPath,
		ApplyOverrides: func(cfg types.Configuration) types.Configuration {
			return config.ApplyFlagOverrides(cfg, flagOverridesFromCLI())
		},
		NewStorage: func(ctx context.Context, cfg types.Configuration) (lifecycle.Storage, error) {
			return storage.Open(cfg.StoragePath)
		},
		NewTaskExecutor: func(ctx context.Context, cfg types.Configuration) (lifecycle.TaskExecutor, error) {
			return executor.New(4, executor.EchoFunc), nil
		},
		NewNetwork: func(ctx context.Context, cfg types.Configuration, nodeID string) (lifecycle.Network, error) {
			net := transport.New(nodeID)
			if err := net.Start(fmt.Sprintf(":%d", cfg.ListenPort)); err != nil {
				return nil, err
			}
			for _, peer := range cfg.BootstrapNodes {
				if err := net.Dial(ctx, peer); err != nil {
					log.WithComponent("start").Warn().Err(err).Str("peer", peer).Msg("bootstrap peer handshake failed")
				}
			}
			return net, nil
		},
	})

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		_ = pidFile.Release()
		var idErr *identity.Error
		switch {
		case sup.DiagnosticReport().Overall == types.SeverityCritical:
			return withExitCode(3, err)
		case errors.As(err, &idErr):
			return withExitCode(1, err)
		case sup.State() == types.StateInitializing:
			// Start stops in Initializing for config, identity and
			// diagnostics failures; only config failures reach here.
			return withExitCode(2, err)
		default:
			return withExitCode(1, err)
		}
	}

	httpServer := controlplane.NewServer(sup, fmt.Sprintf("127.0.0.1:%d", controlPlanePort(sup.Configuration().ListenPort)))
	if _, err := httpServer.Start(); err != nil {
		_ = pidFile.Release()
		return withExitCode(1, err)
	}

	shutdownComplete := make(chan struct{})
	stopSignals := controlplane.WatchSignals(func() {
		defer close(shutdownComplete)
		shutdownCtx := context.Background()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = sup.Shutdown(shutdownCtx)
		_ = pidFile.Release()
	})
	defer stopSignals()

	<-shutdownComplete
	return nil
}

func runStartupDiagnosticsOnly(dataDir, configPath string) error {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return withExitCode(2, err)
	}
	cfg = config.ApplyFlagOverrides(cfg, flagOverridesFromCLI())
	if err := config.Validate(cfg); err != nil {
		return withExitCode(2, err)
	}

	if _, err := identity.LoadOrCreate(dataDir); err != nil {
		return withExitCode(1, err)
	}

	report := diagnostics.Run(context.Background(), diagnostics.Options{
		StoragePath: cfg.StoragePath,
		ListenPort:  cfg.ListenPort,
		MaxMemoryMB: cfg.MaxMemoryMB,
		IdentityDir: dataDir,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.Overall == types.SeverityCritical {
		return withExitCode(3, fmt.Errorf("startup diagnostics reported CRITICAL"))
	}
	return nil
}

func flagOverridesFromCLI() config.FlagOverrides {
	var overrides config.FlagOverrides
	if flagPort != 0 {
		overrides.ListenPort = &flagPort
	}
	if flagMaxPeers != 0 {
		overrides.MaxPeers = &flagMaxPeers
	}
	if flagLogLevel != "" {
		overrides.LogLevel = &flagLogLevel
	}
	return overrides
}
