package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"foodrun/internal/logger"
)

type seqQuery struct {
	mu     sync.Mutex
	values []string
	calls  int
}

func (q *seqQuery) next(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.calls
	q.calls++
	if i >= len(q.values) {
		return q.values[len(q.values)-1], nil
	}
	return q.values[i], nil
}

func (q *seqQuery) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOnChangeOncePerChange(t *testing.T) {
	q := &seqQuery{values: []string{"a", "a", "b", "b", "b", "a", "a"}}
	var mu sync.Mutex
	var got []string
	h := Start(context.Background(), q.next, time.Millisecond, Equal[string], func(v string) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, WithLogger(logger.Discard()))
	waitFor(t, func() bool { return q.count() > len(q.values)+3 })
	h.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	var inflight, maxInflight, calls int32
	query := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return int(atomic.AddInt32(&calls, 1)), nil
	}
	h := Start(context.Background(), query, time.Millisecond, Equal[int], func(int) {}, WithLogger(logger.Discard()))
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) >= 4 })
	h.Stop()
	if m := atomic.LoadInt32(&maxInflight); m != 1 {
		t.Fatalf("expected at most one query in flight, saw %d", m)
	}
}

func TestErrorsAreReportedAndLoopContinues(t *testing.T) {
	var calls, errs int32
	changes := make(chan int, 4)
	query := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			return 0, errors.New("connection refused")
		}
		return 7, nil
	}
	h := Start(context.Background(), query, time.Millisecond, Equal[int], func(v int) { changes <- v },
		WithLogger(logger.Discard()),
		WithOnError(func(error) { atomic.AddInt32(&errs, 1) }))
	defer h.Stop()
	select {
	case v := <-changes:
		if v != 7 {
			t.Fatalf("unexpected value %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not recover from errors")
	}
	if e := atomic.LoadInt32(&errs); e != 2 {
		t.Fatalf("expected 2 reported errors, got %d", e)
	}
}

func TestStopCancelsInFlightAndIsIdempotent(t *testing.T) {
	started := make(chan struct{})
	var fired int32
	query := func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 1, ctx.Err()
	}
	h := Start(context.Background(), query, time.Hour, nil, func(int) { atomic.AddInt32(&fired, 1) }, WithLogger(logger.Discard()))
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Stop()
		}()
	}
	wg.Wait()
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Fatalf("loop still running after Stop")
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("onChange fired for a cancelled query")
	}
}

func TestParentContextStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Start(ctx, func(context.Context) (int, error) { return 1, nil }, time.Millisecond, nil, func(int) {}, WithLogger(logger.Discard()))
	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop ignored parent cancellation")
	}
}

func TestByKey(t *testing.T) {
	type rec struct {
		ID     string
		Status string
	}
	changed := ByKey(func(r rec) string { return r.ID + "/" + r.Status })
	if changed(rec{"1", "A"}, rec{"1", "A"}) {
		t.Fatalf("identical records reported as changed")
	}
	if !changed(rec{"1", "A"}, rec{"1", "B"}) {
		t.Fatalf("status change not detected")
	}
}

func TestPokeTriggersImmediateTick(t *testing.T) {
	var calls int32
	query := func(context.Context) (int32, error) { return atomic.AddInt32(&calls, 1), nil }
	h := Start(context.Background(), query, time.Hour, Equal[int32], func(int32) {}, WithLogger(logger.Discard()))
	defer h.Stop()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })
	h.Poke()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 })
}
