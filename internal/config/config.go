// Package config resolves a single validated Configuration from
// built-in defaults, an optional YAML file (the same library the
// teacher uses for its manifest format), P2P_-prefixed environment
// variables, and CLI flag overrides, in that precedence order
// (highest wins: flags > env > file > defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/p2p-agent/pkg/types"
)

// FieldError describes a single field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every field that failed validation, so an
// operator fixing a config file learns all of its mistakes in one pass
// instead of one-at-a-time.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("config: validation failed:")
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " %s: %s;", f.Field, f.Message)
	}
	return b.String()
}

var validLogLevels = map[types.LogLevel]bool{
	types.LogLevelTrace: true,
	types.LogLevelDebug: true,
	types.LogLevelInfo:  true,
	types.LogLevelWarn:  true,
	types.LogLevelError: true,
}

// Validate checks every field of cfg and returns a *ValidationError
// listing all failures, or nil if cfg is acceptable.
func Validate(cfg types.Configuration) error {
	var fields []FieldError

	if cfg.ListenPort < 1024 || cfg.ListenPort > 65535 {
		fields = append(fields, FieldError{"listen_port", "must be between 1024 and 65535"})
	}
	if cfg.MaxPeers < 1 || cfg.MaxPeers > 256 {
		fields = append(fields, FieldError{"max_peers", "must be between 1 and 256"})
	}
	if cfg.MaxMemoryMB < 128 || cfg.MaxMemoryMB > 16384 {
		fields = append(fields, FieldError{"max_memory_mb", "must be between 128 and 16384"})
	}
	if !validLogLevels[cfg.LogLevel] {
		fields = append(fields, FieldError{"log_level", "must be one of trace, debug, info, warn, error"})
	}
	if cfg.HealthCheckIntervalSec < 1 {
		fields = append(fields, FieldError{"health_check_interval_secs", "must be at least 1"})
	}
	if strings.TrimSpace(cfg.StoragePath) == "" {
		fields = append(fields, FieldError{"storage_path", "must not be empty"})
	} else if err := validateWritableParent(cfg.StoragePath); err != nil {
		fields = append(fields, FieldError{"storage_path", err.Error()})
	}
	for _, node := range cfg.BootstrapNodes {
		if !looksLikeHostPort(node) {
			fields = append(fields, FieldError{"bootstrap_nodes", fmt.Sprintf("%q is not a host:port address", node)})
			break
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func validateWritableParent(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("parent directory %s does not exist", parent)
		}
		return fmt.Errorf("cannot stat parent directory %s: %v", parent, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("parent %s is not a directory", parent)
	}
	return nil
}

func looksLikeHostPort(addr string) bool {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("missing port in address %q", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

// Defaults returns the built-in default Configuration.
func Defaults() types.Configuration {
	return types.Configuration{
		ListenPort:             9000,
		BootstrapNodes:         nil,
		MaxPeers:               32,
		LogLevel:               types.LogLevelInfo,
		StoragePath:            "",
		HealthCheckIntervalSec: 30,
		MaxMemoryMB:            512,
	}
}

// EnsureDefaultFile writes the defaults to path if it does not already
// exist. It never overwrites an existing file and creates parent
// directories with mode 0700.
func EnsureDefaultFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}

	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Load builds an un-validated merged Configuration from defaults, the
// file at path (if present), and recognized P2P_ environment variables.
// A missing file is not an error: the defaults carry through untouched
// for every field the file doesn't set. If the resolved storage_path is
// still empty after the file and environment are applied, it defaults
// to DefaultStoragePath(dataDir).
func Load(path, dataDir string) (types.Configuration, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg fileConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		fileCfg.applyTo(&cfg)
	case os.IsNotExist(err):
		// No file yet; defaults stand.
	default:
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if strings.TrimSpace(cfg.StoragePath) == "" {
		cfg.StoragePath = DefaultStoragePath(dataDir)
	}

	return cfg, nil
}

// fileConfig mirrors Configuration but with every field optional, so a
// YAML file missing a key keeps the built-in default for that field
// instead of zeroing it out.
type fileConfig struct {
	ListenPort             *int     `yaml:"listen_port"`
	BootstrapNodes         []string `yaml:"bootstrap_nodes"`
	MaxPeers               *int     `yaml:"max_peers"`
	LogLevel               *string  `yaml:"log_level"`
	StoragePath            *string  `yaml:"storage_path"`
	HealthCheckIntervalSec *int     `yaml:"health_check_interval_secs"`
	MaxMemoryMB            *int     `yaml:"max_memory_mb"`
}

func (f fileConfig) applyTo(cfg *types.Configuration) {
	if f.ListenPort != nil {
		cfg.ListenPort = *f.ListenPort
	}
	if f.BootstrapNodes != nil {
		cfg.BootstrapNodes = f.BootstrapNodes
	}
	if f.MaxPeers != nil {
		cfg.MaxPeers = *f.MaxPeers
	}
	if f.LogLevel != nil {
		cfg.LogLevel = types.LogLevel(*f.LogLevel)
	}
	if f.StoragePath != nil {
		cfg.StoragePath = *f.StoragePath
	}
	if f.HealthCheckIntervalSec != nil {
		cfg.HealthCheckIntervalSec = *f.HealthCheckIntervalSec
	}
	if f.MaxMemoryMB != nil {
		cfg.MaxMemoryMB = *f.MaxMemoryMB
	}
}

func applyEnv(cfg *types.Configuration) {
	if v, ok := os.LookupEnv("P2P_LISTEN_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = n
		}
	}
	if v, ok := os.LookupEnv("P2P_BOOTSTRAP_NODES"); ok {
		cfg.BootstrapNodes = splitCSV(v)
	}
	if v, ok := os.LookupEnv("P2P_MAX_PEERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPeers = n
		}
	}
	if v, ok := os.LookupEnv("P2P_LOG_LEVEL"); ok {
		cfg.LogLevel = types.LogLevel(v)
	}
	if v, ok := os.LookupEnv("P2P_STORAGE_PATH"); ok {
		cfg.StoragePath = v
	}
	if v, ok := os.LookupEnv("P2P_HEALTH_CHECK_INTERVAL_SECS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthCheckIntervalSec = n
		}
	}
	if v, ok := os.LookupEnv("P2P_MAX_MEMORY_MB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxMemoryMB = n
		}
	}
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FlagOverrides carries the subset of fields an operator may override on
// the command line. A nil pointer means "not supplied".
type FlagOverrides struct {
	ListenPort *int
	MaxPeers   *int
	LogLevel   *string
}

// ApplyFlagOverrides overwrites fields for which the operator supplied a
// flag, the highest-precedence source.
func ApplyFlagOverrides(cfg types.Configuration, flags FlagOverrides) types.Configuration {
	if flags.ListenPort != nil {
		cfg.ListenPort = *flags.ListenPort
	}
	if flags.MaxPeers != nil {
		cfg.MaxPeers = *flags.MaxPeers
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = types.LogLevel(*flags.LogLevel)
	}
	return cfg
}

// DefaultStoragePath returns the default storage_path for a data
// directory, used when the resolved configuration leaves it empty.
func DefaultStoragePath(dataDir string) string {
	return filepath.Join(dataDir, "data")
}
