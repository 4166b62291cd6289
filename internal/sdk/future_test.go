package sdk

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestFutureSettlesOnce(t *testing.T) {
	t.Parallel()
	f := NewFuture[int]()
	if f.Settled() {
		t.Fatal("new future already settled")
	}
	if !f.Resolve(1) {
		t.Fatal("first Resolve should settle")
	}
	if f.Resolve(2) || f.Reject(errors.New("late")) {
		t.Fatal("later settles should be ignored")
	}
	v, err := f.Wait(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("Wait = %d, %v; want 1, nil", v, err)
	}
}

func TestFutureConcurrentSettle(t *testing.T) {
	t.Parallel()
	f := NewFuture[int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestFutureCallbacks(t *testing.T) {
	t.Parallel()
	f := NewFuture[string]()
	var got []string
	f.OnComplete(func(v string, err error) { got = append(got, "early:"+v) })
	f.OnComplete(nil)
	f.Resolve("x")
	f.OnComplete(func(v string, err error) { got = append(got, "late:"+v) })
	f.Resolve("y")
	if len(got) != 2 || got[0] != "early:x" || got[1] != "late:x" {
		t.Fatalf("callbacks = %v", got)
	}
}

func TestFutureWaitGivesUpWithoutSettling(t *testing.T) {
	t.Parallel()
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if f.Settled() {
		t.Fatal("Wait must not settle the future")
	}
	select {
	case <-f.Done():
		t.Fatal("Done closed on a pending future")
	default:
	}
}

func TestFailedAndResolved(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	if _, err := Failed[int](boom).Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Failed err = %v", err)
	}
	if v, err := Resolved(7).Wait(context.Background()); v != 7 || err != nil {
		t.Fatalf("Resolved = %d, %v", v, err)
	}
}

func TestMap(t *testing.T) {
	t.Parallel()
	src := NewFuture[any]()
	out := Map(src, func(v any) (int, error) {
		s, ok := v.(string)
		if !ok {
			return 0, errors.New("not a string")
		}
		return strconv.Atoi(s)
	})
	src.Resolve("42")
	if v, err := out.Wait(context.Background()); v != 42 || err != nil {
		t.Fatalf("Map = %d, %v", v, err)
	}

	bad := Map(Resolved[any](3), func(v any) (int, error) { return 0, errors.New("conv") })
	if _, err := bad.Wait(context.Background()); err == nil {
		t.Fatal("conversion error should reject the derived future")
	}

	boom := errors.New("boom")
	failed := Map(Failed[any](boom), func(v any) (int, error) { return 1, nil })
	if _, err := failed.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("source error = %v, want boom", err)
	}
}

func TestPresent(t *testing.T) {
	t.Parallel()
	if Present(nil) {
		t.Fatal("nil module reported present")
	}
	if !Present(stubModule{ok: true}) || Present(stubModule{ok: false}) {
		t.Fatal("Present should honor Available()")
	}
	if !Present(plainModule{}) {
		t.Fatal("module without Available() should be present")
	}
}

type plainModule struct{}

func (plainModule) AddListener(string, Listener) Subscription { return nil }
func (plainModule) Exec(Command)                              {}
func (plainModule) Query(Command) *Future[any]                { return NewFuture[any]() }

type stubModule struct {
	plainModule
	ok bool
}

func (s stubModule) Available() bool { return s.ok }
