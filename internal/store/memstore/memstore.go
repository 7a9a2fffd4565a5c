// Package memstore implements an in-memory, map-backed api.StoreClient
// reference implementation: no network, no persistence, used by package
// tests across the module and by the "miner demo" CLI subcommand in place
// of a real triple store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// resource is a single stored graph/resource row, keyed by URI.
type resource struct {
	row     api.StoreRow
	pending bool // true if this resource still needs extraction metadata
}

// Store is a trivial, fully in-process api.StoreClient.
type Store struct {
	mu sync.Mutex

	resources map[string]*resource // URI -> resource
	roots     map[string][]string  // rootURI -> member URIs

	subscribers []func(api.ChangeEvent)
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		resources: make(map[string]*resource),
		roots:     make(map[string][]string),
	}
}

// Seed installs a row directly, bypassing the batch/update path. Intended
// for test fixtures that need to pre-populate store state.
func (s *Store) Seed(rootURI string, row api.StoreRow, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[row.URI]; !exists {
		s.roots[rootURI] = append(s.roots[rootURI], row.URI)
	}
	s.resources[row.URI] = &resource{row: row, pending: pending}
}

// Snapshot returns every resource currently held by the store, sorted by
// URI. Unlike QueryRootContents it does not require the resource to have
// been registered under a root, so it is useful for introspection by
// callers (tests, the "miner demo" subcommand) that only go through
// Batch.Execute and never call Seed.
func (s *Store) Snapshot() []api.StoreRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]api.StoreRow, 0, len(s.resources))
	for _, r := range s.resources {
		rows = append(rows, r.row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].URI < rows[j].URI })
	return rows
}

// QueryRootContents implements api.StoreClient.
func (s *Store) QueryRootContents(ctx context.Context, rootURI string) ([]api.StoreRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uris := s.roots[rootURI]
	rows := make([]api.StoreRow, 0, len(uris))
	for _, uri := range uris {
		if r, ok := s.resources[uri]; ok {
			rows = append(rows, r.row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].URI < rows[j].URI })
	return rows, nil
}

// Update implements api.StoreClient. The in-memory store has no SPARQL
// engine, so updates are no-ops: the statement is ignored and no
// subscriber is notified; rows change only through Batch.Execute.
func (s *Store) Update(ctx context.Context, sparql string) error {
	return nil
}

// CreateBatch implements api.StoreClient.
func (s *Store) CreateBatch() api.Batch {
	return &batch{store: s}
}

// CountPending implements api.StoreClient.
func (s *Store) CountPending(ctx context.Context, priorityGraphs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.resources {
		if r.pending {
			count++
		}
	}
	return count, nil
}

// PagePending implements api.StoreClient. Rows are ordered by URI, with any
// row whose URI equals one of priorityGraphs placed first; the store does
// not record which graph a resource belongs to, so rows are not grouped by
// graph membership.
func (s *Store) PagePending(ctx context.Context, priorityGraphs []string, limit, offset int) ([]model.DecoratorInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priority := make(map[string]bool, len(priorityGraphs))
	for _, g := range priorityGraphs {
		priority[g] = true
	}

	pending := make([]api.StoreRow, 0)
	for _, r := range s.resources {
		if r.pending {
			pending = append(pending, r.row)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		pi, pj := priority[pending[i].URI], priority[pending[j].URI]
		if pi != pj {
			return pi
		}
		return pending[i].URI < pending[j].URI
	})

	if offset >= len(pending) {
		return nil, nil
	}
	end := offset + limit
	if end > len(pending) {
		end = len(pending)
	}

	out := make([]model.DecoratorInfo, 0, end-offset)
	for _, row := range pending[offset:end] {
		out = append(out, model.DecoratorInfo{
			URN:      row.FolderURN,
			URL:      row.URI,
			Mimetype: row.Mimetype,
			ID:       row.URI,
		})
	}
	return out, nil
}

// Subscribe implements api.StoreClient.
func (s *Store) Subscribe(callback func(api.ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, callback)
}

func (s *Store) notify(ev api.ChangeEvent) {
	for _, cb := range s.subscribers {
		cb(ev)
	}
}

// MarkExtracted clears a resource's pending flag, records its extractor
// hash and notifies subscribers of the update.
func (s *Store) MarkExtracted(uri, extractorHash string) {
	s.mu.Lock()
	r, ok := s.resources[uri]
	if ok {
		r.pending = false
		r.row.ExtractorHash = extractorHash
	}
	s.mu.Unlock()
	if ok {
		s.notify(api.ChangeEvent{ID: uri, Kind: api.ChangeUpdate})
	}
}

// batch accumulates resource/sparql updates for one atomic commit.
type batch struct {
	store     *Store
	resources []resourceUpdate
	sparql    []string
}

type resourceUpdate struct {
	graph, resource string
}

func (b *batch) AddResource(graph, resource string) {
	b.resources = append(b.resources, resourceUpdate{graph, resource})
}

func (b *batch) AddSparql(sparql string) {
	b.sparql = append(b.sparql, sparql)
}

// Execute adds every accumulated resource the store does not yet know as a
// pending row, atomically (under the store's single mutex), and fires one
// change notification per resource touched. Each resource's graph and all
// AddSparql statements are not applied.
func (b *batch) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.store.mu.Lock()
	touched := make([]string, 0, len(b.resources))
	for _, u := range b.resources {
		uri := u.resource
		r, ok := b.store.resources[uri]
		if !ok {
			r = &resource{row: api.StoreRow{URI: uri}, pending: true}
			b.store.resources[uri] = r
		}
		touched = append(touched, uri)
	}
	b.store.mu.Unlock()

	for _, uri := range touched {
		b.store.notify(api.ChangeEvent{ID: uri, Kind: api.ChangeCreate})
	}
	return nil
}
