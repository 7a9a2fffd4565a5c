package monitor

import (
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu       sync.Mutex
	watched  map[string]bool
	evts     chan Event
	errs     chan error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		watched: make(map[string]bool),
		evts:    make(chan Event, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeBackend) watch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched[path] = true
	return nil
}

func (f *fakeBackend) unwatch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, path)
	return nil
}

func (f *fakeBackend) events() <-chan Event { return f.evts }
func (f *fakeBackend) errors() <-chan error { return f.errs }
func (f *fakeBackend) close() error         { close(f.evts); return nil }

func TestMonitorCoalescesBurstsOnSameFile(t *testing.T) {
	fb := newFakeBackend()
	var mu sync.Mutex
	var received []Event

	m := newWithBackend(fb, nil, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})
	defer m.Close()

	fb.evts <- Event{Kind: EventCreated, Path: "/r/a.txt"}
	fb.evts <- Event{Kind: EventUpdated, Path: "/r/a.txt"}
	fb.evts <- Event{Kind: EventUpdated, Path: "/r/a.txt"}

	time.Sleep(coalesceWindow + 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one coalesced event, got %d: %+v", len(received), received)
	}
	if received[0].Kind != EventUpdated {
		t.Errorf("expected the final event kind (Updated) to win coalescing, got %v", received[0].Kind)
	}
}

func TestMonitorDisabledSuppressesDelivery(t *testing.T) {
	fb := newFakeBackend()
	var count int
	var mu sync.Mutex

	m := newWithBackend(fb, nil, func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer m.Close()

	m.SetEnabled(false)
	fb.evts <- Event{Kind: EventCreated, Path: "/r/a.txt"}
	time.Sleep(coalesceWindow + 300*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no events to be delivered while disabled, got %d", count)
	}
}

func TestMonitorWatchUnwatch(t *testing.T) {
	fb := newFakeBackend()
	m := newWithBackend(fb, nil, func(Event) {})
	defer m.Close()

	if err := m.Watch("/r"); err != nil {
		t.Fatal(err)
	}
	if !fb.watched["/r"] {
		t.Error("expected backend to record the watch")
	}
	m.Unwatch("/r")
	if fb.watched["/r"] {
		t.Error("expected backend to drop the watch")
	}
}
