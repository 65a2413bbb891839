package queue

import "testing"

func TestFIFOOrderPerAddress(t *testing.T) {
	q := New[int]()
	q.PushBack("0000002a", 1)
	q.PushBack("0000002a", 2)
	q.PushBack("0000002b", 100)
	q.PushBack("0000002a", 3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.PopFront("0000002a")
		if !ok {
			t.Fatalf("expected an item, queue empty")
		}
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
	if _, ok := q.PopFront("0000002a"); ok {
		t.Fatal("expected empty queue after draining")
	}

	got, ok := q.PopFront("0000002b")
	if !ok || got != 100 {
		t.Fatalf("other address queue = %v, %v, want 100, true", got, ok)
	}
}

func TestPopFrontMissingAddress(t *testing.T) {
	q := New[int]()
	if _, ok := q.PopFront("nope"); ok {
		t.Fatal("expected ok=false for unknown address")
	}
}

func TestEmptyQueueSurvivesAfterDrain(t *testing.T) {
	q := New[int]()
	q.PushBack("addr", 1)
	q.PopFront("addr")
	// Entries are not removed when a queue empties: pushing again should
	// still work and the address should already be tracked.
	if _, tracked := q.addrs["addr"]; !tracked {
		t.Fatal("drained address was removed from the queue set")
	}
	q.PushBack("addr", 2)
	got, ok := q.PopFront("addr")
	if !ok || got != 2 {
		t.Fatalf("got %v, %v, want 2, true", got, ok)
	}
}
