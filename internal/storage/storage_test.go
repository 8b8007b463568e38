package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/p2p-agent/pkg/types"
)

func TestOpenCreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	defer store.Shutdown(context.Background())

	if err := store.HealthProbe(context.Background()); err != nil {
		t.Errorf("HealthProbe() = %v, want nil right after open", err)
	}
}

func TestPutGetResultRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	defer store.Shutdown(context.Background())

	want := types.Result{
		TaskID:    "task-1",
		Output:    []byte("ok"),
		StartedAt: time.Now().UTC().Truncate(time.Second),
		EndedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := store.PutResult(want); err != nil {
		t.Fatalf("PutResult(): %v", err)
	}

	got, err := store.GetResult("task-1")
	if err != nil {
		t.Fatalf("GetResult(): %v", err)
	}
	if got.TaskID != want.TaskID || string(got.Output) != string(want.Output) {
		t.Errorf("GetResult() = %+v, want %+v", got, want)
	}
}

func TestGetResultNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	defer store.Shutdown(context.Background())

	_, err = store.GetResult("missing")
	if err != ErrNotFound {
		t.Errorf("GetResult() error = %v, want ErrNotFound", err)
	}
}

func TestShutdownClosesCleanly(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}

	if err := store.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}
