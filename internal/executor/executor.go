// Package executor runs independent zone tasks on a bounded worker pool and
// joins them before returning.
//
// Reproducibility rests on two rules. Every task receives its own generator,
// seeded from the master generator before any goroutine starts, in task order,
// so the seed of task i never depends on scheduling. Results (and the error
// reported, if several tasks fail) are returned in task order.
//
// Tasks must not touch shared state except through a serializing facade such
// as SerializedJobs.
package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/microsim/internal/rng"
)

// TaskFunc processes one task with its private generator.
type TaskFunc[T, R any] func(ctx context.Context, r *rand.Rand, task T) (R, error)

// TaskError reports the first failing task, by task order.
type TaskError struct {
	Index int    // position of the task in the input
	Task  string // task label (fmt.Sprint of the task)
	Err   error
	Panic bool // true when the task panicked
}

func (e *TaskError) Error() string {
	if e.Panic {
		return fmt.Sprintf("task %d (%s) panicked: %v", e.Index, e.Task, e.Err)
	}
	return fmt.Sprintf("task %d (%s) failed: %v", e.Index, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Pool bounds how many tasks run at once.
type Pool struct {
	workers int
}

// New creates a pool of the given size; workers <= 0 means GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes fn over every task and blocks until all of them finish.
//
// There is no cancellation: once started, every task runs to completion even
// if another one fails. The returned slice is aligned with tasks. On failure
// the lowest-index TaskError is returned with whatever results were produced.
func Run[T, R any](ctx context.Context, p *Pool, master *rand.Rand, tasks []T, fn TaskFunc[T, R]) ([]R, error) {
	out := make([]R, len(tasks))
	if len(tasks) == 0 {
		return out, nil
	}

	seeds := rng.Seeds(master, len(tasks))
	errs := make([]*TaskError, len(tasks))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range tasks {
		g.Go(func() error {
			errs[i] = runOne(ctx, i, tasks[i], seeds[i], fn, &out[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func runOne[T, R any](ctx context.Context, i int, task T, seed uint64, fn TaskFunc[T, R], dst *R) (te *TaskError) {
	defer func() {
		if v := recover(); v != nil {
			te = &TaskError{Index: i, Task: fmt.Sprint(task), Err: fmt.Errorf("%v", v), Panic: true}
		}
	}()

	res, err := fn(ctx, rng.New(seed), task)
	if err != nil {
		return &TaskError{Index: i, Task: fmt.Sprint(task), Err: err}
	}
	*dst = res
	return nil
}
