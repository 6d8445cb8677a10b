// ABOUTME: Background execution loop that owns all backend I/O off the caller's goroutine
// ABOUTME: Typed Submit returns a one-shot Task whose Wait is bounded by a timeout

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mauromedda/medassist/internal/log"
)

// DefaultConcurrency bounds how many tasks run at once.
const DefaultConcurrency = 64

var (
	// ErrTimeout is returned by Wait when the bound elapses first.
	ErrTimeout = errors.New("timed out waiting for task")
	// ErrStopped is delivered to tasks submitted after Stop.
	ErrStopped = errors.New("scheduler stopped")
	// ErrPanic wraps a recovered task panic.
	ErrPanic = errors.New("task panicked")
)

// Options configures a Loop.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
}

// Loop runs submitted tasks on their own goroutines. Tasks may overlap; each
// one blocks only on its own I/O. Submit never blocks: a task waits for one
// of Concurrency slots on its own goroutine, and gives up when its caller's
// context is done.
type Loop struct {
	log   *slog.Logger
	slots *semaphore.Weighted
	group errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders group.Go in Submit before group.Wait in Stop.
	mu      sync.RWMutex
	started bool
	stopped bool

	stopOnce sync.Once

	submitted atomic.Int64
	running   atomic.Int64
}

// New creates a Loop. Call Start before submitting work.
func New(opts Options) *Loop {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		log:    logger,
		slots:  semaphore.NewWeighted(int64(opts.Concurrency)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start opens the loop for work. It is safe to call more than once.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = true
}

// Stop refuses new tasks, cancels the loop context, and waits for running
// tasks until ctx is done. Later calls return nil.
func (l *Loop) Stop(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		started := l.started
		l.mu.Unlock()
		l.cancel()
		if !started {
			return
		}

		drained := make(chan struct{})
		go func() {
			_ = l.group.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			l.log.Warn("scheduler stopped with tasks still running", "running", l.running.Load())
			err = fmt.Errorf("stopping scheduler: %w", ctx.Err())
		}
	})
	return err
}

// Running returns the number of tasks currently executing.
func (l *Loop) Running() int64 {
	return l.running.Load()
}

// Submitted returns the number of tasks accepted so far.
func (l *Loop) Submitted() int64 {
	return l.submitted.Load()
}

// Task is the one-shot result of a submitted function.
type Task[T any] struct {
	name string
	done chan struct{}
	val  T
	err  error
}

// Submit schedules fn on the loop and returns its Task. fn receives the loop
// context, which is cancelled by Stop.
func Submit[T any](l *Loop, name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	return SubmitContext(context.Background(), l, name, fn)
}

// SubmitContext is Submit for a caller that gives up when ctx is done. The
// task stops waiting for a slot at that point, and fn receives a context
// cancelled by either ctx or Stop.
func SubmitContext[T any](ctx context.Context, l *Loop, name string, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{name: name, done: make(chan struct{})}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.started || l.stopped {
		t.finish(*new(T), ErrStopped)
		return t
	}

	l.submitted.Add(1)
	l.group.Go(func() error {
		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		unhook := context.AfterFunc(l.ctx, cancel)
		defer unhook()

		if err := l.slots.Acquire(taskCtx, 1); err != nil {
			t.finish(*new(T), l.abandoned(ctx))
			return nil
		}
		defer l.slots.Release(1)

		l.running.Add(1)
		defer l.running.Add(-1)
		t.run(taskCtx, fn)
		return nil
	})
	return t
}

// abandoned explains why a task never got a slot.
func (l *Loop) abandoned(caller context.Context) error {
	if l.ctx.Err() != nil {
		return ErrStopped
	}
	if errors.Is(caller.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return caller.Err()
}

func (t *Task[T]) run(ctx context.Context, fn func(ctx context.Context) (T, error)) {
	var (
		val T
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanic, t.name, r)
		}
		t.finish(val, err)
	}()
	val, err = fn(ctx)
}

func (t *Task[T]) finish(val T, err error) {
	t.val = val
	t.err = err
	close(t.done)
}

// Done is closed once the task has a result.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the result is available or timeout elapses. A
// non-positive timeout waits indefinitely. Timing out does not stop the task.
func (t *Task[T]) Wait(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-t.done
		return t.val, t.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.val, t.err
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, t.name)
	}
}

// WaitContext is Wait bounded by ctx instead of a duration. A deadline
// expiry is reported as ErrTimeout.
func (t *Task[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s", ErrTimeout, t.name)
		}
		return zero, ctx.Err()
	}
}
