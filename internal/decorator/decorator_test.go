package decorator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/sparqlbuffer"
)

type fakeBatch struct{}

func (f *fakeBatch) AddResource(graph, resource string) {}
func (f *fakeBatch) AddSparql(sparql string)             {}
func (f *fakeBatch) Execute(ctx context.Context) error   { return nil }

type fakeStore struct {
	mu       sync.Mutex
	count    int
	items    []model.DecoratorInfo
	subCb    func(api.ChangeEvent)
}

func (s *fakeStore) QueryRootContents(ctx context.Context, rootURI string) ([]api.StoreRow, error) {
	return nil, nil
}
func (s *fakeStore) Update(ctx context.Context, sparql string) error { return nil }
func (s *fakeStore) CreateBatch() api.Batch                          { return &fakeBatch{} }

func (s *fakeStore) CountPending(ctx context.Context, priorityGraphs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

func (s *fakeStore) PagePending(ctx context.Context, priorityGraphs []string, limit, offset int) ([]model.DecoratorInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= len(s.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.items) {
		end = len(s.items)
	}
	return s.items[offset:end], nil
}

func (s *fakeStore) Subscribe(callback func(api.ChangeEvent)) { s.subCb = callback }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDecoratorStocksCacheAndServesNext(t *testing.T) {
	store := &fakeStore{count: 2, items: []model.DecoratorInfo{
		{URN: "urn:1", TaskHandle: "t1"},
		{URN: "urn:2", TaskHandle: "t2"},
	}}
	buf := sparqlbuffer.New(store, 1000)
	d := New(store, buf, nil)

	d.ensureStocked(context.Background())

	var item model.DecoratorInfo
	var ok bool
	waitFor(t, func() bool {
		item, ok = d.Next(context.Background())
		return ok
	})
	if item.URN != "urn:1" {
		t.Fatalf("expected urn:1 first, got %+v", item)
	}
}

func TestDecoratorCompleteDropsFromInFlight(t *testing.T) {
	store := &fakeStore{count: 1, items: []model.DecoratorInfo{{URN: "urn:1", TaskHandle: "t1"}}}
	buf := sparqlbuffer.New(store, 1000)
	d := New(store, buf, nil)
	d.ensureStocked(context.Background())

	var item model.DecoratorInfo
	waitFor(t, func() bool {
		var ok bool
		item, ok = d.Next(context.Background())
		return ok
	})

	var finished bool
	var mu sync.Mutex
	d.OnFinished(func() {
		mu.Lock()
		finished = true
		mu.Unlock()
	})

	d.Complete(context.Background(), item, ConsumerResult{Sparql: "INSERT DATA {...}"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return finished
	})
}

func TestDecoratorCompleteErrorInvokesOnError(t *testing.T) {
	store := &fakeStore{}
	buf := sparqlbuffer.New(store, 1000)
	d := New(store, buf, nil)

	var gotURL, gotMsg string
	d.OnError(func(url, message, sparql string) {
		gotURL = url
		gotMsg = message
	})

	item := model.DecoratorInfo{URL: "file:///r/a", TaskHandle: "t1"}
	d.Complete(context.Background(), item, ConsumerResult{Err: errFake{}})

	if gotURL != "file:///r/a" || gotMsg != "fake error" {
		t.Fatalf("expected onError to be invoked with the failure, got url=%q msg=%q", gotURL, gotMsg)
	}
}

type errFake struct{}

func (errFake) Error() string { return "fake error" }

func TestPauseStopsEnsureStocked(t *testing.T) {
	store := &fakeStore{count: 1, items: []model.DecoratorInfo{{URN: "urn:1", TaskHandle: "t1"}}}
	buf := sparqlbuffer.New(store, 1000)
	d := New(store, buf, nil)
	d.Pause()

	_, ok := d.Next(context.Background())
	if ok {
		t.Fatal("expected Next to report nothing while paused")
	}
}

func TestChangeNotificationDeleteDropsCachedItem(t *testing.T) {
	store := &fakeStore{}
	buf := sparqlbuffer.New(store, 1000)
	d := New(store, buf, nil)
	d.itemCache = []model.DecoratorInfo{{ID: "a", URN: "urn:a"}, {ID: "b", URN: "urn:b"}}

	store.subCb(api.ChangeEvent{ID: "a", Kind: api.ChangeDelete})

	if len(d.itemCache) != 1 || d.itemCache[0].ID != "b" {
		t.Fatalf("expected only urn:b to remain, got %+v", d.itemCache)
	}
}
