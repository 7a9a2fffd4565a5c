package miner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/eventqueue"
	"github.com/trackerminers/filesystem-miner/internal/indexing"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/sparqlbuffer"
)

type fakeHost struct {
	mu        sync.Mutex
	processed []string
	removed   []string
	moved     []string
}

func (h *fakeHost) ProcessFile(ctx context.Context, file string, info model.FileInfo, buffer api.UpdateBuffer, created bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed = append(h.processed, file)
	buffer.PushSparql(file, "INSERT")
	return nil
}

func (h *fakeHost) ProcessFileAttributes(ctx context.Context, file string, info model.FileInfo, buffer api.UpdateBuffer) error {
	return h.ProcessFile(ctx, file, info, buffer, false)
}

func (h *fakeHost) RemoveFile(ctx context.Context, file string, buffer api.UpdateBuffer, isDir bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, file)
	return nil
}

func (h *fakeHost) RemoveChildren(ctx context.Context, file string, buffer api.UpdateBuffer) error {
	return nil
}

func (h *fakeHost) MoveFile(ctx context.Context, dest, source string, buffer api.UpdateBuffer, recursive bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.moved = append(h.moved, source+"->"+dest)
	return nil
}

func (h *fakeHost) Progress(fraction float64, remainingSeconds float64) {}
func (h *fakeHost) Finished(elapsedSeconds float64, stats model.CrawlStats) {}
func (h *fakeHost) FinishedRoot(root *model.Root) {}
func (h *fakeHost) CurrentExtractorHash(mimetype string) string { return "" }

type fakeBatch struct{}

func (f *fakeBatch) AddResource(graph, resource string) {}
func (f *fakeBatch) AddSparql(sparql string)             {}
func (f *fakeBatch) Execute(ctx context.Context) error   { return nil }

type fakeStore struct{}

func (s *fakeStore) QueryRootContents(ctx context.Context, rootURI string) ([]api.StoreRow, error) {
	return nil, nil
}
func (s *fakeStore) Update(ctx context.Context, sparql string) error { return nil }
func (s *fakeStore) CreateBatch() api.Batch                          { return &fakeBatch{} }
func (s *fakeStore) CountPending(ctx context.Context, priorityGraphs []string) (int, error) {
	return 0, nil
}
func (s *fakeStore) PagePending(ctx context.Context, priorityGraphs []string, limit, offset int) ([]model.DecoratorInfo, error) {
	return nil, nil
}
func (s *fakeStore) Subscribe(callback func(api.ChangeEvent)) {}

func newTestMiner(t *testing.T) (*Miner, *eventqueue.Queue, *fakeHost) {
	t.Helper()
	tree := indexing.New()
	if _, err := tree.AddRoot("/r", model.FlagRecurse); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	q := eventqueue.New()
	buf := sparqlbuffer.New(&fakeStore{}, 1000)
	host := &fakeHost{}
	m := New(tree, q, buf, host, nil, 0)
	return m, q, host
}

func TestDispatchSliceProcessesCreated(t *testing.T) {
	m, q, host := newTestMiner(t)
	q.Enqueue(model.QueueEvent{Kind: model.EventCreated, File: "/r/a.txt"})

	n := m.dispatchSlice(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 dispatched, got %d", n)
	}
	if len(host.processed) != 1 || host.processed[0] != "/r/a.txt" {
		t.Fatalf("expected ProcessFile to be called, got %+v", host.processed)
	}
}

func TestDispatchSliceHandlesDeleted(t *testing.T) {
	m, q, host := newTestMiner(t)
	q.Enqueue(model.QueueEvent{Kind: model.EventDeleted, File: "/r/a.txt"})

	m.dispatchSlice(context.Background())
	if len(host.removed) != 1 {
		t.Fatalf("expected RemoveFile to be called, got %+v", host.removed)
	}
}

func TestDispatchSliceHandlesMoved(t *testing.T) {
	m, q, host := newTestMiner(t)
	q.Enqueue(model.QueueEvent{Kind: model.EventMoved, File: "/r/a.txt", DestFile: "/r/b.txt"})

	m.dispatchSlice(context.Background())
	if len(host.moved) != 1 || host.moved[0] != "/r/a.txt->/r/b.txt" {
		t.Fatalf("expected MoveFile to be called, got %+v", host.moved)
	}
}

func TestDispatchSliceStopsAtQueueEmpty(t *testing.T) {
	m, _, _ := newTestMiner(t)
	n := m.dispatchSlice(context.Background())
	if n != 0 {
		t.Fatalf("expected 0 dispatched on an empty queue, got %d", n)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m, _, _ := newTestMiner(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after cancellation")
	}
}
