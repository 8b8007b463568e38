package metadata

import (
	"testing"
	"time"

	"github.com/cuemby/p2p-agent/pkg/types"
)

func TestSnapshotWithoutStartedAt(t *testing.T) {
	md := Snapshot("abc123", types.StateInitializing, nil, time.Now())
	if md.StartedAt != nil {
		t.Error("StartedAt should be nil before the node has started")
	}
	if md.UptimeSecs != nil {
		t.Error("UptimeSecs should be nil before the node has started")
	}
	if md.NodeID != "abc123" {
		t.Errorf("NodeID = %q, want abc123", md.NodeID)
	}
}

func TestSnapshotUptimeDerivedFromStartedAt(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	now := started.Add(90 * time.Second)

	md := Snapshot("abc123", types.StateActive, &started, now)
	if md.UptimeSecs == nil {
		t.Fatal("UptimeSecs is nil, want a derived value")
	}
	if *md.UptimeSecs != 90 {
		t.Errorf("UptimeSecs = %d, want 90", *md.UptimeSecs)
	}
}

func TestSnapshotUptimeNeverNegative(t *testing.T) {
	now := time.Now()
	started := now.Add(5 * time.Second) // clock skew: started "in the future"

	md := Snapshot("abc123", types.StateActive, &started, now)
	if *md.UptimeSecs != 0 {
		t.Errorf("UptimeSecs = %d, want clamped to 0", *md.UptimeSecs)
	}
}
