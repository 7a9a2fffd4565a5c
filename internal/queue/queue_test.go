package queue

import "testing"

func TestPriorityThenFIFO(t *testing.T) {
	q := New()
	q.Push("normal-1", 0)
	q.Push("high-1", 1)
	q.Push("normal-2", 0)
	q.Push("high-2", 1)

	want := []string{"high-1", "high-2", "normal-1", "normal-2"}
	for _, w := range want {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("expected a value, got empty queue")
		}
		if got.(string) != w {
			t.Errorf("expected %q, got %q", w, got)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected queue to be empty")
	}
}

func TestRemoveByHandle(t *testing.T) {
	q := New()
	q.Push("a", 0)
	hb := q.Push("b", 0)
	q.Push("c", 0)

	q.Remove(hb)

	if got := q.Len(); got != 2 {
		t.Fatalf("expected length 2 after removal, got %d", got)
	}

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.(string) != "a" || second.(string) != "c" {
		t.Errorf("unexpected pop order after removal: %v, %v", first, second)
	}
}

func TestRemoveAfterPopIsNoOp(t *testing.T) {
	q := New()
	ha := q.Push("a", 0)

	if _, ok := q.Pop(); !ok {
		t.Fatal("expected to pop a value")
	}

	// Removing a handle whose entry has already been popped must not panic
	// or corrupt a subsequent push.
	q.Remove(ha)
	q.Push("b", 0)

	if got := q.Len(); got != 1 {
		t.Errorf("expected length 1, got %d", got)
	}
}
