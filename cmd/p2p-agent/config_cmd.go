package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/p2p-agent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the agent's configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the config file, run validation, and print the batch error report",
	RunE:  runConfigValidate,
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the fully resolved configuration (file + env + flags) as YAML",
	RunE:  runConfigExport,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configExportCmd)
}

func resolvedConfigPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	return filepath.Join(defaultDataDir(), "config.yaml")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()

	cfg, err := config.Load(path, defaultDataDir())
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed to parse %s: %v\n", path, err)
		return withExitCode(2, err)
	}
	cfg = config.ApplyFlagOverrides(cfg, flagOverridesFromCLI())

	if err := config.Validate(cfg); err != nil {
		verr, ok := err.(*config.ValidationError)
		if !ok {
			return withExitCode(2, err)
		}
		for _, f := range verr.Fields {
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", f.Field, f.Message)
		}
		return withExitCode(2, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return nil
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()

	cfg, err := config.Load(path, defaultDataDir())
	if err != nil {
		return withExitCode(1, err)
	}
	cfg = config.ApplyFlagOverrides(cfg, flagOverridesFromCLI())

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return withExitCode(1, err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
