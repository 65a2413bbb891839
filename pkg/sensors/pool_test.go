package sensors

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolRunsOnWorkerGoroutine(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var calls int32
	for i := 0; i < 10; i++ {
		if err := p.Do(func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		}); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if calls != 10 {
		t.Fatalf("calls = %d, want 10", calls)
	}
}

func TestPoolPropagatesError(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	want := errors.New("boom")
	if err := p.Do(func() error { return want }); err != want {
		t.Fatalf("Do err = %v, want %v", err, want)
	}
}
