// Package types holds the value types shared across the agent's
// components: the resolved configuration, lifecycle and diagnostic
// records, and the abstract task/result pair the task executor
// collaborator operates on.
package types

import "time"

// LogLevel is the recognized set of logging verbosities.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Configuration is the single validated record produced by the config
// resolver. It is immutable once returned from Validate.
type Configuration struct {
	ListenPort             int      `yaml:"listen_port"`
	BootstrapNodes         []string `yaml:"bootstrap_nodes"`
	MaxPeers               int      `yaml:"max_peers"`
	LogLevel               LogLevel `yaml:"log_level"`
	StoragePath            string   `yaml:"storage_path"`
	HealthCheckIntervalSec int      `yaml:"health_check_interval_secs"`
	MaxMemoryMB            int      `yaml:"max_memory_mb"`
}

// Severity is the classification of a diagnostic check or overall report.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarn:
		return "WARN"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DiagnosticResult is the outcome of a single startup diagnostic check.
type DiagnosticResult struct {
	Name          string    `json:"name"`
	Severity      Severity  `json:"-"`
	SeverityName  string    `json:"severity"`
	Message       string    `json:"message"`
	MeasuredValue string    `json:"measured_value,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// DiagnosticReport is the ordered sequence of checks run at startup.
type DiagnosticReport struct {
	Results     []DiagnosticResult `json:"results"`
	Overall     Severity           `json:"-"`
	OverallName string             `json:"overall"`
}

// LifecycleState is one of the five tagged values the supervisor's state
// machine may occupy.
type LifecycleState string

const (
	StateStopped      LifecycleState = "Stopped"
	StateInitializing LifecycleState = "Initializing"
	StateRegistering  LifecycleState = "Registering"
	StateActive       LifecycleState = "Active"
	StateShuttingDown LifecycleState = "ShuttingDown"
)

// NodeMetadata is a point-in-time snapshot of process identity, version
// and lifecycle state.
type NodeMetadata struct {
	NodeID         string         `json:"node_id"`
	Version        string         `json:"version"`
	BuildTimestamp string         `json:"build_timestamp"`
	GitCommit      string         `json:"git_commit,omitempty"`
	TargetTriple   string         `json:"target_triple"`
	State          LifecycleState `json:"state"`
	UptimeSecs     *int64         `json:"uptime_secs,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
}

// Task is the abstract unit of work handed to the task executor
// collaborator. Payload is opaque to the core.
type Task struct {
	ID      string
	Payload []byte
}

// Result is the outcome of executing a Task.
type Result struct {
	TaskID    string
	Output    []byte
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}
