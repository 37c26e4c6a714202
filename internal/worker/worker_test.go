package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pollUntil drives Poll the way a host would until cond holds.
func pollUntil(t *testing.T, poll func(), cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		poll()
		time.Sleep(time.Millisecond)
	}
}

func TestWorker_StartAndComplete(t *testing.T) {
	var got []int
	w := New("test", Hooks[int]{
		OnComplete: func(v int) { got = append(got, v) },
	})
	defer w.Close()

	release := make(chan struct{})
	if !w.Start(func(context.Context) (int, error) {
		<-release
		return 42, nil
	}) {
		t.Fatal("Start should accept work on an idle worker")
	}

	if !w.Live() {
		t.Error("worker should be live while the operation blocks")
	}
	if w.Start(func(context.Context) (int, error) { return 0, nil }) {
		t.Error("Start must refuse work while an operation is outstanding")
	}

	w.Poll()
	if len(got) != 0 {
		t.Errorf("Poll delivered %v before the operation finished", got)
	}

	close(release)
	pollUntil(t, w.Poll, func() bool { return len(got) == 1 })

	if got[0] != 42 {
		t.Errorf("expected 42, got %d", got[0])
	}
	if w.Pending() {
		t.Error("result was collected, worker should not be pending")
	}
}

func TestWorker_ErrorsReachHook(t *testing.T) {
	boom := errors.New("boom")
	var reported []error
	w := New("errors", Hooks[string]{
		OnComplete: func(string) { t.Error("OnComplete called for a failed operation") },
		OnError:    func(err error) { reported = append(reported, err) },
	})
	defer w.Close()

	w.Start(func(context.Context) (string, error) { return "", boom })
	pollUntil(t, w.Poll, func() bool { return len(reported) == 1 })

	if !errors.Is(reported[0], boom) {
		t.Errorf("expected boom, got %v", reported[0])
	}
	if s := w.Stats(); s.Failed != 1 || s.Completed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	var reported []error
	w := New("panics", Hooks[int]{
		OnError: func(err error) { reported = append(reported, err) },
	})
	defer w.Close()

	w.Start(func(context.Context) (int, error) { panic("driver exploded") })
	pollUntil(t, w.Poll, func() bool { return len(reported) == 1 })

	if !errors.Is(reported[0], ErrPanic) {
		t.Errorf("expected ErrPanic, got %v", reported[0])
	}

	// The worker keeps serving after a panic.
	if !w.Start(func(context.Context) (int, error) { return 1, nil }) {
		t.Fatal("worker refused work after a recovered panic")
	}
	pollUntil(t, w.Poll, func() bool { return w.Stats().Completed == 1 })
}

func TestWorker_NextRunsInOrderWithoutOverlap(t *testing.T) {
	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		mu       sync.Mutex
		order    []int
	)

	queue := []int{1, 2, 3, 4, 5, 6, 7, 8}
	w := New("ordered", Hooks[int]{
		Next: func() (Op[int], bool) {
			if len(queue) == 0 {
				return nil, false
			}
			v := queue[0]
			queue = queue[1:]
			return func(context.Context) (int, error) {
				n := inFlight.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return v, nil
			}, true
		},
		OnComplete: func(v int) {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
		},
	})
	defer w.Close()

	pollUntil(t, w.Poll, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 8
	})

	if maxSeen.Load() != 1 {
		t.Errorf("expected at most one operation in flight, saw %d", maxSeen.Load())
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("results out of order: %v", order)
		}
	}
}

func TestWorker_IdlePollIsIdempotent(t *testing.T) {
	calls := 0
	w := New("idle", Hooks[int]{
		Next: func() (Op[int], bool) {
			calls++
			return nil, false
		},
		OnComplete: func(int) { t.Error("nothing should complete") },
	})
	defer w.Close()

	for i := 0; i < 50; i++ {
		w.Poll()
	}
	if s := w.Stats(); s.Started != 0 {
		t.Errorf("idle polling started %d operations", s.Started)
	}
	if calls != 50 {
		t.Errorf("expected Next to be consulted on every idle poll, got %d", calls)
	}
}

func TestWorker_CloseWaitsForInFlight(t *testing.T) {
	w := New("close", Hooks[int]{})

	var finished atomic.Bool
	started := make(chan struct{})
	w.Start(func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return 0, ctx.Err()
	})
	<-started

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !finished.Load() {
		t.Error("Close returned before the in-flight operation finished")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if w.Start(func(context.Context) (int, error) { return 0, nil }) {
		t.Error("closed worker accepted work")
	}
}
