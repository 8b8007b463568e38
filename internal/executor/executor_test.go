package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/p2p-agent/pkg/types"
)

func TestPoolExecutesEchoTask(t *testing.T) {
	pool := New(2, EchoFunc)
	defer pool.Drain(context.Background())

	task := types.Task{ID: "t1", Payload: []byte("hello")}
	if err := pool.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	select {
	case result := <-pool.Results():
		if result.TaskID != "t1" || string(result.Output) != "hello" {
			t.Errorf("result = %+v, want echoed payload", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPoolPropagatesTaskErrors(t *testing.T) {
	failing := func(_ context.Context, task types.Task) (types.Result, error) {
		return types.Result{}, errors.New("boom")
	}
	pool := New(1, failing)
	defer pool.Drain(context.Background())

	if err := pool.Submit(context.Background(), types.Task{ID: "t2"}); err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	select {
	case result := <-pool.Results():
		if result.Error == "" {
			t.Error("result.Error is empty, want the propagated failure message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestDrainRejectsNewTasks(t *testing.T) {
	pool := New(1, EchoFunc)
	if err := pool.Drain(context.Background()); err != nil {
		t.Fatalf("Drain(): %v", err)
	}

	err := pool.Submit(context.Background(), types.Task{ID: "late"})
	if err == nil {
		t.Error("Submit() after Drain() = nil error, want rejection")
	}
}

func TestDrainDeadlineExceeded(t *testing.T) {
	blocked := make(chan struct{})
	slow := func(ctx context.Context, task types.Task) (types.Result, error) {
		<-blocked
		return types.Result{TaskID: task.ID}, nil
	}
	pool := New(1, slow)
	defer close(blocked)

	if err := pool.Submit(context.Background(), types.Task{ID: "slow"}); err != nil {
		t.Fatalf("Submit(): %v", err)
	}
	// give the worker time to pick up the task before draining
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := pool.Drain(ctx); err == nil {
		t.Error("Drain() = nil, want deadline-exceeded error while a task is still running")
	}
}
