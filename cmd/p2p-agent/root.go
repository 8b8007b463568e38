package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/p2p-agent/internal/log"
	"github.com/cuemby/p2p-agent/internal/metadata"
	"github.com/cuemby/p2p-agent/pkg/types"
)

// Build-time version information, set via -ldflags the same way the
// teacher stamps Version/Commit/BuildTime on its root command.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "p2p-agent",
	Short: "p2p-agent is a peer-to-peer task execution node",
	Long: `p2p-agent joins a decentralized overlay, announces its capabilities,
accepts work units from peers or local operators, executes them under
resource limits, and returns signed results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVersion {
			fmt.Fprintf(cmd.OutOrStdout(), "p2p-agent version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime)
			os.Exit(0)
		}
		return nil
	},
	RunE: runStart,
}

var (
	flagConfigPath         string
	flagDaemon             bool
	flagPIDFile            string
	flagLogLevel           string
	flagLogFormat          string
	flagPort               int
	flagMaxPeers           int
	flagStartupDiagnostics bool
	flagVersion            bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "path to the config file (default <data-dir>/config.yaml)")
	pf.BoolVar(&flagDaemon, "daemon", false, "run as a background daemon (POSIX only)")
	pf.StringVar(&flagPIDFile, "pid-file", "", "path to the PID file (default <data-dir>/p2p-agent.pid)")
	pf.StringVar(&flagLogLevel, "log-level", "", "override log_level (trace, debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log encoding: text or json")
	pf.IntVar(&flagPort, "port", 0, "override listen_port")
	pf.IntVar(&flagMaxPeers, "max-peers", 0, "override max_peers")
	pf.BoolVarP(&flagVersion, "version", "V", false, "print version and exit")
	rootCmd.Flags().BoolVar(&flagStartupDiagnostics, "startup-diagnostics", false, "run startup diagnostics, print the report, and exit without starting")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)

	metadata.Version = Version
	metadata.BuildTimestamp = BuildTime
	metadata.GitCommit = Commit
}

func initLogging() {
	level := types.LogLevel(flagLogLevel)
	if level == "" {
		level = types.LogLevelInfo
	}
	format := log.FormatText
	if flagLogFormat == "json" {
		format = log.FormatJSON
	}
	log.Init(log.Config{Level: level, Format: format})
}
