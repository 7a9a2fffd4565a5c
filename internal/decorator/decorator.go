// Package decorator implements the Decorator (C11): a resumable
// extraction-metadata pipeline that treats the set of resources whose
// extracted-metadata hash is missing or stale as a workqueue, pages it
// from the store, hands items to a single consumer, and commits produced
// updates through a sparql buffer. Modeled on the teacher's
// session.Controller pause/resume/stop lifecycle (deleted package, pattern
// kept) applied to a pull-based work queue instead of a sync session.
package decorator

import (
	"context"
	"sync"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/sparqlbuffer"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

const (
	// pageSize is the decorator's page_query LIMIT, per spec §4.10's
	// "target 200".
	pageSize = 200

	// batchSize is the default sparql-buffer flush threshold for produced
	// updates.
	batchSize = 100
)

// ConsumerResult is returned by the single consumer for each DecoratorInfo
// it is handed: either a produced sparql update, or an error.
type ConsumerResult struct {
	Sparql string
	Err    error
}

// Decorator is the resumable extraction pipeline.
type Decorator struct {
	store  api.StoreClient
	buffer *sparqlbuffer.Buffer
	logger *logging.Logger

	mu             sync.Mutex
	priorityGraphs []string
	itemCache      []model.DecoratorInfo
	inFlight       map[string]bool // task handle -> true while a consumer holds it
	queryInFlight  bool
	paused         bool
	stopped        bool

	onFinished func()
	onError    func(url, message, sparql string)
}

// New creates a Decorator. store is queried for count_query/page_query;
// buffer receives produced updates.
func New(store api.StoreClient, buffer *sparqlbuffer.Buffer, logger *logging.Logger) *Decorator {
	d := &Decorator{
		store:    store,
		buffer:   buffer,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
	store.Subscribe(d.handleChange)
	return d
}

// OnFinished registers a callback invoked when n_remaining_items reaches
// zero (spec §4.10 step 5).
func (d *Decorator) OnFinished(f func()) { d.onFinished = f }

// OnError registers a callback invoked per still-failing update after a
// batch-commit fallback.
func (d *Decorator) OnError(f func(url, message, sparql string)) { d.onError = f }

// SetPriorityGraphs sets the ordered list of priority graph IRIs; changing
// it invalidates the cache and triggers a rerun of step (1).
func (d *Decorator) SetPriorityGraphs(ctx context.Context, graphs []string) {
	d.mu.Lock()
	d.priorityGraphs = graphs
	d.itemCache = nil
	d.mu.Unlock()
	d.ensureStocked(ctx)
}

// Pause stops Next from handing out items and stops new count/page queries
// until Resume. Items already handed to a consumer are not cancelled.
func (d *Decorator) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

// Resume restarts step (1).
func (d *Decorator) Resume(ctx context.Context) {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	d.ensureStocked(ctx)
}

// Stop cancels and discards all pending state.
func (d *Decorator) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.itemCache = nil
	d.inFlight = make(map[string]bool)
}

// ensureStocked implements step (1): if the cache is empty and no query is
// in flight, run count_query, then page_query if count > 0.
func (d *Decorator) ensureStocked(ctx context.Context) {
	d.mu.Lock()
	if d.paused || d.stopped || d.queryInFlight || len(d.itemCache) > 0 {
		d.mu.Unlock()
		return
	}
	d.queryInFlight = true
	graphs := d.priorityGraphs
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.queryInFlight = false
			d.mu.Unlock()
		}()

		count, err := d.store.CountPending(ctx, graphs)
		if err != nil {
			if d.logger != nil {
				d.logger.Warnf("decorator count_query failed: %s", err.Error())
			}
			return
		}
		if count == 0 {
			d.maybeSignalFinished()
			return
		}

		offset := d.pendingOffset()
		items, err := d.store.PagePending(ctx, graphs, pageSize, offset)
		if err != nil {
			if d.logger != nil {
				d.logger.Warnf("decorator page_query failed: %s", err.Error())
			}
			return
		}

		d.mu.Lock()
		d.itemCache = append(d.itemCache, items...)
		d.mu.Unlock()
	}()
}

func (d *Decorator) pendingOffset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.itemCache) + d.buffer.QueuedLen()
}

// Next pairs the head of the item cache with this consumer, returning the
// next DecoratorInfo and true, or false if the cache is currently empty
// (the caller should retry once ensureStocked has had a chance to run).
func (d *Decorator) Next(ctx context.Context) (model.DecoratorInfo, bool) {
	d.mu.Lock()
	if d.paused || d.stopped || len(d.itemCache) == 0 {
		d.mu.Unlock()
		d.ensureStocked(ctx)
		return model.DecoratorInfo{}, false
	}
	item := d.itemCache[0]
	d.itemCache = d.itemCache[1:]
	d.inFlight[item.TaskHandle] = true
	d.mu.Unlock()

	return item, true
}

// Complete reports a consumer's outcome for a previously-issued
// DecoratorInfo. On success, the produced sparql is pushed into the sparql
// buffer and a flush is triggered once the buffer reaches batchSize.
func (d *Decorator) Complete(ctx context.Context, item model.DecoratorInfo, result ConsumerResult) {
	d.mu.Lock()
	delete(d.inFlight, item.TaskHandle)
	d.mu.Unlock()

	if result.Err != nil {
		if d.onError != nil {
			d.onError(item.URL, result.Err.Error(), "")
		}
		return
	}

	d.buffer.PushSparql(item.URN, result.Sparql)
	if d.buffer.QueuedLen() >= batchSize {
		d.buffer.Flush(ctx, func(r sparqlbuffer.Result) {
			if d.onError == nil {
				return
			}
			for _, f := range r.Failed {
				d.onError(f.File, f.Message, "")
			}
		})
	}

	d.maybeSignalFinished()
}

func (d *Decorator) maybeSignalFinished() {
	d.mu.Lock()
	remaining := len(d.itemCache) + len(d.inFlight)
	flushing := d.buffer.Flushing()
	d.mu.Unlock()

	if remaining == 0 {
		if d.onFinished != nil {
			d.onFinished()
		}
		if !flushing {
			d.ensureStocked(context.Background())
		}
	}
}

// handleChange implements spec §4.10's change-notification integration: on
// CREATE/UPDATE, rerun step (1) if idle; on DELETE, drop the cached item
// with that id.
func (d *Decorator) handleChange(ev api.ChangeEvent) {
	switch ev.Kind {
	case api.ChangeCreate, api.ChangeUpdate:
		d.mu.Lock()
		idle := len(d.itemCache) == 0 && !d.queryInFlight
		d.mu.Unlock()
		if idle {
			d.ensureStocked(context.Background())
		}
	case api.ChangeDelete:
		d.mu.Lock()
		filtered := d.itemCache[:0]
		for _, item := range d.itemCache {
			if item.ID != ev.ID {
				filtered = append(filtered, item)
			}
		}
		d.itemCache = filtered
		d.mu.Unlock()
	}
}
