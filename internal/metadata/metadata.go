// Package metadata assembles the read-only NodeMetadata snapshot
// surfaced over the control plane. Snapshot is a pure function over its
// inputs: it does not block and does not itself read the clock twice.
package metadata

import (
	"time"

	"github.com/cuemby/p2p-agent/pkg/types"
)

// Build values, populated at compile time via -ldflags the way the
// teacher's main.go stamps its own version metadata. Left at the
// defaults below in a plain `go build` invocation.
var (
	Version        = "dev"
	BuildTimestamp = "unknown"
	GitCommit      = "unknown"
	TargetTriple   = "unknown"
)

// Snapshot returns a NodeMetadata value for nodeID at the given state.
// startedAt is nil when the node is not Active (the supervisor sets it on
// entering Active and clears it on shutdown); when set, UptimeSecs is
// derived from now - startedAt.
func Snapshot(nodeID string, state types.LifecycleState, startedAt *time.Time, now time.Time) types.NodeMetadata {
	md := types.NodeMetadata{
		NodeID:         nodeID,
		Version:        Version,
		BuildTimestamp: BuildTimestamp,
		GitCommit:      GitCommit,
		TargetTriple:   TargetTriple,
		State:          state,
		StartedAt:      startedAt,
	}

	if startedAt != nil {
		uptime := int64(now.Sub(*startedAt).Seconds())
		if uptime < 0 {
			uptime = 0
		}
		md.UptimeSecs = &uptime
	}

	return md
}
