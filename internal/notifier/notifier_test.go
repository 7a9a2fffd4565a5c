package notifier

import (
	"sync"
	"testing"

	"github.com/trackerminers/filesystem-miner/internal/indexing"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/monitor"
)

func newTestNotifier(t *testing.T) (*Notifier, *indexing.Tree, *[]model.QueueEvent) {
	t.Helper()
	tree := indexing.New()
	if _, err := tree.AddRoot("/r", model.FlagRecurse|model.FlagMonitor); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}

	mon, err := monitor.New(nil, func(monitor.Event) {})
	if err != nil {
		t.Skipf("monitor backend unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { mon.Close() })

	var mu sync.Mutex
	var events []model.QueueEvent
	n := New(tree, nil, nil, nil, mon, nil, nil, func(ev model.QueueEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	return n, tree, &events
}

func TestHandleMonitorCreatedFile(t *testing.T) {
	n, _, events := newTestNotifier(t)
	n.HandleMonitorEvent(monitor.Event{Kind: monitor.EventCreated, Path: "/r/a.txt"})

	if len(*events) != 1 || (*events)[0].Kind != model.EventCreated {
		t.Fatalf("expected one Created event, got %+v", *events)
	}
}

func TestHandleMonitorDeleted(t *testing.T) {
	n, _, events := newTestNotifier(t)
	n.HandleMonitorEvent(monitor.Event{Kind: monitor.EventDeleted, Path: "/r/a.txt"})

	if len(*events) != 1 || (*events)[0].Kind != model.EventDeleted {
		t.Fatalf("expected one Deleted event, got %+v", *events)
	}
}

func TestHandleMonitorMovedBothIndexableEmitsMoved(t *testing.T) {
	n, _, events := newTestNotifier(t)
	n.HandleMonitorEvent(monitor.Event{Kind: monitor.EventMoved, Path: "/r/a.txt", Dest: "/r/b.txt"})

	if len(*events) != 1 || (*events)[0].Kind != model.EventMoved {
		t.Fatalf("expected one Moved event, got %+v", *events)
	}
}

func TestHandleMonitorMovedExtensionChangeAlsoEmitsUpdate(t *testing.T) {
	n, _, events := newTestNotifier(t)
	n.HandleMonitorEvent(monitor.Event{Kind: monitor.EventMoved, Path: "/r/a.txt", Dest: "/r/b.pdf"})

	if len(*events) != 2 {
		t.Fatalf("expected Moved + Updated on extension change, got %+v", *events)
	}
	if (*events)[0].Kind != model.EventMoved || (*events)[1].Kind != model.EventUpdated {
		t.Fatalf("expected [Moved, Updated] order, got %+v", *events)
	}
}

func TestHandleMonitorOutsideAnyRootIsIgnored(t *testing.T) {
	n, _, events := newTestNotifier(t)
	n.HandleMonitorEvent(monitor.Event{Kind: monitor.EventCreated, Path: "/elsewhere/a.txt"})

	if len(*events) != 0 {
		t.Fatalf("expected no events for a path outside any root, got %+v", *events)
	}
}

func TestComputeStateReachesReportAsCreate(t *testing.T) {
	fd := &model.FileData{InDisk: true, InStore: false}
	if fd.ComputeState("hash") != model.StateCreate {
		t.Fatal("expected Create for in_disk && !in_store")
	}
}

func TestCancelRootEmitsDeletedUnlessPreserved(t *testing.T) {
	n, _, events := newTestNotifier(t)
	root := &model.Root{Path: "/r", Flags: model.FlagRecurse}

	n.CancelRoot(root, false)
	if len(*events) != 1 || (*events)[0].Kind != model.EventDeleted {
		t.Fatalf("expected a Deleted event when not preserved, got %+v", *events)
	}
}

func TestCancelRootPreservedEmitsNothing(t *testing.T) {
	n, _, events := newTestNotifier(t)
	root := &model.Root{Path: "/r", Flags: model.FlagRecurse | model.FlagPreserve}

	n.CancelRoot(root, true)
	if len(*events) != 0 {
		t.Fatalf("expected no event when preserved, got %+v", *events)
	}
}
