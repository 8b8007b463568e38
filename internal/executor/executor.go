// Package executor provides the default in-process TaskExecutor
// collaborator: a fixed-size worker pool of stopCh-based goroutines
// draining a work queue, built around an abstract execute(Task) ->
// Result the agent core remains agnostic to.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/p2p-agent/internal/metrics"
	"github.com/cuemby/p2p-agent/pkg/types"
)

// Func runs a single task and produces its result. The default Pool
// uses EchoFunc; production deployments supply their own.
type Func func(ctx context.Context, task types.Task) (types.Result, error)

// EchoFunc is the default task function: it returns the payload
// unchanged. Useful for exercising the lifecycle and control plane
// without a real workload.
func EchoFunc(_ context.Context, task types.Task) (types.Result, error) {
	now := time.Now().UTC()
	return types.Result{
		TaskID:    task.ID,
		Output:    task.Payload,
		StartedAt: now,
		EndedAt:   now,
	}, nil
}

// Pool is a fixed-size worker pool executing tasks concurrently.
type Pool struct {
	fn      Func
	tasks   chan taskRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	results chan types.Result
}

type taskRequest struct {
	task types.Task
	ctx  context.Context
}

// New creates a Pool with the given number of workers and task
// function. Workers start immediately.
func New(workers int, fn Func) *Pool {
	if workers < 1 {
		workers = 1
	}
	if fn == nil {
		fn = EchoFunc
	}

	p := &Pool{
		fn:      fn,
		tasks:   make(chan taskRequest, workers*4),
		stopCh:  make(chan struct{}),
		results: make(chan types.Result, workers*4),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case req := <-p.tasks:
			timer := metrics.NewTimer()
			result, err := p.fn(req.ctx, req.task)
			timer.ObserveDuration(metrics.TaskExecutionDuration)

			outcome := "success"
			if err != nil {
				outcome = "failure"
				result = types.Result{TaskID: req.task.ID, Error: err.Error()}
			}
			metrics.TasksExecutedTotal.WithLabelValues(outcome).Inc()

			select {
			case p.results <- result:
			case <-p.stopCh:
			}
		}
	}
}

// Submit enqueues a task for execution. It returns an error if the pool
// is draining or the queue is full.
func (p *Pool) Submit(ctx context.Context, task types.Task) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("executor: pool is shutting down, rejecting task %s", task.ID)
	default:
	}

	select {
	case p.tasks <- taskRequest{task: task, ctx: ctx}:
		return nil
	default:
		return fmt.Errorf("executor: task queue full, rejecting task %s", task.ID)
	}
}

// Results returns the channel of completed task results.
func (p *Pool) Results() <-chan types.Result {
	return p.results
}

// Drain stops accepting new tasks and waits for in-flight work to
// finish, bounded by ctx's deadline.
func (p *Pool) Drain(ctx context.Context) error {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: drain deadline exceeded: %w", ctx.Err())
	}
}
