package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrClosed is returned when work is submitted to a closed worker.
	ErrClosed = errors.New("worker is closed")

	// ErrPanic wraps a panic recovered from an operation or a callback.
	ErrPanic = errors.New("unexpected panic")
)

// Op is one blocking operation. The context is cancelled only when the
// worker is closed; operations that cannot be interrupted may ignore it.
type Op[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one operation.
type Result[T any] struct {
	Seq      uint64
	Value    T
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the operation ran.
func (r Result[T]) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Hooks connect a worker to the component that owns it.
type Hooks[T any] struct {
	// Next is asked for more work after every poll that leaves the worker
	// idle. Returning false means there is nothing to start.
	Next func() (Op[T], bool)

	// OnComplete receives the value of every successful operation.
	OnComplete func(T)

	// OnError receives operation failures and recovered panics.
	OnError func(error)
}

// Stats counts the operations a worker has run.
type Stats struct {
	Started   uint64
	Completed uint64
	Failed    uint64
}

type job[T any] struct {
	seq uint64
	op  Op[T]
}

// Worker runs operations one at a time on a single goroutine.
//
// Start, Poll and Close belong to the host goroutine. Live and Stats may be
// called from anywhere.
type Worker[T any] struct {
	name  string
	hooks Hooks[T]

	jobs    chan job[T]
	results chan Result[T]

	// pending is owned by the host goroutine: true from Start until the
	// result has been collected by Poll.
	pending bool
	seq     uint64

	running atomic.Bool
	closed  atomic.Bool

	started   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a worker and starts its goroutine.
func New[T any](name string, hooks Hooks[T]) *Worker[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker[T]{
		name:    name,
		hooks:   hooks,
		jobs:    make(chan job[T], 1),
		results: make(chan Result[T], 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Name returns the worker name used in log output.
func (w *Worker[T]) Name() string {
	return w.name
}

// Start submits op if no operation is outstanding. It reports whether op
// was accepted and never blocks.
func (w *Worker[T]) Start(op Op[T]) bool {
	if op == nil || w.pending || w.closed.Load() {
		return false
	}

	w.seq++
	w.pending = true
	w.running.Store(true)
	w.started.Add(1)

	// The job channel has room for one job and the goroutine is idle
	// whenever pending was false, so this send cannot block.
	w.jobs <- job[T]{seq: w.seq, op: op}
	return true
}

// Live reports whether an operation is running right now.
func (w *Worker[T]) Live() bool {
	return w.running.Load()
}

// Pending reports whether an operation was started and its result has not
// been collected yet.
func (w *Worker[T]) Pending() bool {
	return w.pending
}

// Poll collects a finished operation, hands its result to the hooks and
// starts the next operation if the owner has one. It never blocks.
func (w *Worker[T]) Poll() {
	if w.closed.Load() {
		return
	}

	if w.pending {
		select {
		case r := <-w.results:
			w.pending = false
			w.deliver(r)
		default:
			return
		}
	}

	if w.hooks.Next == nil {
		return
	}
	op, ok := w.next()
	if ok {
		w.Start(op)
	}
}

// Stats returns operation counters.
func (w *Worker[T]) Stats() Stats {
	return Stats{
		Started:   w.started.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
	}
}

// Close stops the worker. An operation in flight is allowed to finish;
// its context is cancelled and its result discarded. Close is idempotent.
func (w *Worker[T]) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.cancel()
		<-w.done
		log.Debug("Worker stopped", "worker", w.name, "started", w.started.Load())
	})
	return nil
}

func (w *Worker[T]) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			r := w.execute(j)
			w.running.Store(false)
			w.results <- r
		}
	}
}

func (w *Worker[T]) execute(j job[T]) (r Result[T]) {
	r.Seq = j.seq
	r.Started = time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.Err = fmt.Errorf("%w in %s: %v\n%s", ErrPanic, w.name, p, debug.Stack())
		}
		r.Finished = time.Now()
	}()

	r.Value, r.Err = j.op(w.ctx)
	return r
}

func (w *Worker[T]) deliver(r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			w.report(fmt.Errorf("%w in %s callback: %v", ErrPanic, w.name, p))
		}
	}()

	if r.Err != nil {
		w.failed.Add(1)
		log.Debug("Worker operation failed", "worker", w.name, "seq", r.Seq, "error", r.Err)
		w.report(r.Err)
		return
	}

	w.completed.Add(1)
	if w.hooks.OnComplete != nil {
		w.hooks.OnComplete(r.Value)
	}
}

func (w *Worker[T]) next() (op Op[T], ok bool) {
	defer func() {
		if p := recover(); p != nil {
			w.report(fmt.Errorf("%w in %s: %v", ErrPanic, w.name, p))
			op, ok = nil, false
		}
	}()
	return w.hooks.Next()
}

func (w *Worker[T]) report(err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Worker error hook panicked", "worker", w.name, "panic", p, "error", err)
		}
	}()
	if w.hooks.OnError != nil {
		w.hooks.OnError(err)
		return
	}
	log.Error("Worker error", "worker", w.name, "error", err)
}
