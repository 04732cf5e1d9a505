// atmos/coordinator.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/atmofield/atmofield/log"
	"github.com/atmofield/atmofield/util"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"
)

// Initializer is implemented by modifiers that need expensive setup
// (loading datasets, decoding images) before they can give values.
// Initialize should return promptly once ctx is done.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Task is the pending result of one modifier's initialization.
type Task struct {
	Modifier Initializer

	done    chan struct{}
	mu      sync.Mutex
	err     error
	elapsed time.Duration
}

func newTask(m Initializer) *Task {
	return &Task{Modifier: m, done: make(chan struct{})}
}

func (t *Task) run(ctx context.Context) {
	start := time.Now()
	defer close(t.done)
	defer func() {
		if err := recover(); err != nil {
			t.err = &PanicError{Value: err}
		}
		t.elapsed = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		t.err = err
		return
	}
	t.err = t.Modifier.Initialize(ctx)
}

// Done returns a channel that is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done, returning the
// initialization error or ctx's error. It may be called any number of
// times and from several goroutines.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// poll returns the task's result without blocking; finished is false if
// the task is still running.
func (t *Task) poll() (finished bool, elapsed time.Duration, err error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return true, t.elapsed, t.err
	default:
		return false, 0, nil
	}
}

type CoordinatorState int

const (
	Idle CoordinatorState = iota
	Running
	Joined
)

func (s CoordinatorState) String() string {
	return [...]string{"idle", "running", "joined"}[s]
}

type CoordinatorOptions struct {
	// Timeout bounds the time from Start until Join gives up on
	// unfinished tasks; zero means no limit.
	Timeout time.Duration
	// Concurrency is the maximum number of initializations that run at
	// once; zero means GOMAXPROCS.
	Concurrency int
}

// Coordinator runs the Initialize method of every registered modifier
// that has one off of the query path and, at Join, purges the modifiers
// whose initialization failed. A Coordinator runs once.
type Coordinator struct {
	reg  *Registry
	lg   *log.Logger
	opts CoordinatorOptions

	mu     sync.Mutex
	state  CoordinatorState
	tasks  []*Task
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewCoordinator(reg *Registry, lg *log.Logger, opts CoordinatorOptions) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Coordinator{reg: reg, lg: lg, opts: opts, done: make(chan struct{})}
}

func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tasks returns the tasks started by Start.
func (c *Coordinator) Tasks() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

// Start launches the initialization of every distinct registered
// Initializer. Calls after the first do nothing.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return
	}
	c.state = Running

	var inits []Initializer
	for _, b := range c.reg.models() {
		for _, m := range b.Modifiers() {
			in, ok := m.(Initializer)
			if ok && !slices.ContainsFunc(inits, func(o Initializer) bool { return sameModifier(o, in) }) {
				inits = append(inits, in)
			}
		}
	}
	c.tasks = util.MapSlice(inits, newTask)

	if c.opts.Timeout > 0 {
		c.ctx, c.cancel = context.WithTimeout(ctx, c.opts.Timeout)
	} else {
		c.ctx, c.cancel = context.WithCancel(ctx)
	}

	c.lg.Infof("starting %d modifier initializations, %d at a time", len(c.tasks), c.opts.Concurrency)

	tasks, tctx := c.tasks, c.ctx
	go func() {
		var eg errgroup.Group
		eg.SetLimit(c.opts.Concurrency)
		for _, t := range tasks {
			// Failures are reported through the task so that they don't
			// affect the others.
			eg.Go(func() error {
				t.run(tctx)
				return nil
			})
		}
		eg.Wait()
		close(c.done)
	}()
}

// Join starts the coordinator if it is idle and then waits for every
// task to finish, for the timeout to expire, or for ctx to be done.
// Modifiers whose initialization failed or did not finish are purged from
// every body. The returned error joins an *InitError for each; other
// modifiers are usable regardless. Calls after the first return the same
// result without doing anything.
func (c *Coordinator) Join(ctx context.Context) error {
	c.Start(ctx)

	c.mu.Lock()
	if c.state == Joined {
		c.mu.Unlock()
		return c.err
	}
	tctx := c.ctx
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-tctx.Done():
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Joined {
		return c.err
	}
	c.state = Joined

	var errs []error
	for _, t := range c.tasks {
		finished, elapsed, err := t.poll()
		if !finished {
			cause := tctx.Err()
			if ctx.Err() != nil {
				cause = ctx.Err()
			}
			err = fmt.Errorf("%w: %w", ErrNotJoined, cause)
			initTasksTotal.WithLabelValues("timeout").Inc()
		} else {
			initDurationSeconds.Observe(elapsed.Seconds())
			if err != nil {
				initTasksTotal.WithLabelValues("failed").Inc()
			} else {
				initTasksTotal.WithLabelValues("ok").Inc()
			}
		}

		if err != nil {
			ie := &InitError{Modifier: t.Modifier, Err: err}
			c.lg.Errorf("%v", ie)
			n := c.reg.Purge(t.Modifier)
			c.lg.Warnf("%T: removed from %d lists", t.Modifier, n)
			errs = append(errs, ie)
		} else {
			c.lg.Infof("%T: initialized in %s", t.Modifier, elapsed)
		}
	}
	c.cancel()

	if vm, err := mem.VirtualMemory(); err == nil {
		c.lg.Infof("initialization joined: %d tasks, %d failed; host memory %.1f%% used, %d MB available",
			len(c.tasks), len(errs), vm.UsedPercent, vm.Available/(1024*1024))
	} else {
		c.lg.Infof("initialization joined: %d tasks, %d failed", len(c.tasks), len(errs))
	}

	c.err = errors.Join(errs...)
	return c.err
}
