package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/p2p-agent/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the local agent's control plane and print its status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dataDir := defaultDataDir()
	configPath := flagConfigPath
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.yaml")
	}

	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return withExitCode(1, fmt.Errorf("load config: %w", err))
	}

	client := http.Client{Timeout: 3 * time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/node/info", controlPlanePort(cfg.ListenPort))

	resp, err := client.Get(url)
	if err != nil {
		return withExitCode(1, fmt.Errorf("agent unreachable at %s: %w", url, err))
	}
	defer resp.Body.Close()

	var md map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return withExitCode(1, fmt.Errorf("decode status response: %w", err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}
