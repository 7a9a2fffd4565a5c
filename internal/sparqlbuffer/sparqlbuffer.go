// Package sparqlbuffer implements the Sparql Buffer (C9): a batching layer
// between the Miner Core and the store, modeled on the teacher's
// rsync-engine stage-then-atomically-swap-then-commit pattern applied here
// to batched store updates instead of file transfers.
package sparqlbuffer

import (
	"context"
	"sync"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// Result is reported to a Flush callback: either every task in the
// flushed batch succeeded, or at least one failed and per-task errors were
// emitted individually via the synchronous fallback.
type Result struct {
	Succeeded bool
	Failed    []FailedTask
}

// FailedTask describes one task that could not be committed even after
// the per-task synchronous fallback.
type FailedTask struct {
	File    string
	Message string
}

// Buffer holds pending tasks grouped into a single unflushed batch, plus at
// most one commit-in-flight batch, per spec §4.9.
type Buffer struct {
	mu sync.Mutex

	store      api.StoreClient
	readyLimit int

	queued   map[string]model.SparqlTask // file -> task, state Queued
	flushing map[string]model.SparqlTask // file -> task, state Flushing

	stallCh chan struct{} // closed and replaced whenever a flush completes, to release stalled callers
}

// New creates an empty buffer writing through store. readyLimit is the
// back-pressure threshold from spec §4.9 ("when queued tasks exceed
// ready-limit, the dispatcher must stall").
func New(store api.StoreClient, readyLimit int) *Buffer {
	return &Buffer{
		store:      store,
		readyLimit: readyLimit,
		queued:     make(map[string]model.SparqlTask),
		flushing:   make(map[string]model.SparqlTask),
		stallCh:    make(chan struct{}),
	}
}

// Push adds a graph/resource update for file to the buffer, returning its
// resulting state (always Queued on success).
func (b *Buffer) Push(file, graph, resource string) model.TaskState {
	return b.push(file, model.SparqlPayload{Graph: graph, Resource: resource})
}

// PushSparql adds a raw SPARQL update for file to the buffer.
func (b *Buffer) PushSparql(file, sparql string) model.TaskState {
	return b.push(file, model.SparqlPayload{Sparql: sparql})
}

func (b *Buffer) push(file string, payload model.SparqlPayload) model.TaskState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued[file] = model.SparqlTask{File: file, Payload: payload, State: model.TaskQueued}
	return model.TaskQueued
}

// State reports the current state of the task for file, or TaskUnknown if
// the buffer holds no task for it.
func (b *Buffer) State(file string) model.TaskState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.flushing[file]; ok {
		return model.TaskFlushing
	}
	if _, ok := b.queued[file]; ok {
		return model.TaskQueued
	}
	return model.TaskUnknown
}

// QueuedLen returns the number of tasks in the unflushed batch.
func (b *Buffer) QueuedLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued)
}

// Overloaded reports whether the queued count exceeds the configured
// ready-limit; the miner core's dispatcher should stall new pushes until a
// flush completes when this is true.
func (b *Buffer) Overloaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyLimit > 0 && len(b.queued) > b.readyLimit
}

// Flushing reports whether a commit is currently in flight — a flush while
// one is already in flight is a no-op, per spec §4.9's invariant.
func (b *Buffer) Flushing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.flushing) > 0
}

// Wait blocks until the in-flight flush (if any) completes. Callers
// observing Overloaded should Wait before pushing further tasks.
func (b *Buffer) Wait() {
	b.mu.Lock()
	ch := b.stallCh
	b.mu.Unlock()
	<-ch
}

// Flush moves the current buffer into the commit slot and issues one
// atomic batch-execute request via the store. It is a no-op if a flush is
// already in flight or the buffer is empty. callback receives the
// aggregate Result once the batch (or its per-task fallback) completes.
func (b *Buffer) Flush(ctx context.Context, callback func(Result)) {
	b.mu.Lock()
	if len(b.flushing) > 0 || len(b.queued) == 0 {
		b.mu.Unlock()
		return
	}
	b.flushing = b.queued
	b.queued = make(map[string]model.SparqlTask)
	batch := make([]model.SparqlTask, 0, len(b.flushing))
	for _, t := range b.flushing {
		t.State = model.TaskFlushing
		batch = append(batch, t)
	}
	b.mu.Unlock()

	go b.commit(ctx, batch, callback)
}

func (b *Buffer) commit(ctx context.Context, batch []model.SparqlTask, callback func(Result)) {
	storeBatch := b.store.CreateBatch()
	for _, t := range batch {
		addBatchEntry(storeBatch, t)
	}

	var res Result
	if err := storeBatch.Execute(ctx); err == nil {
		res = Result{Succeeded: true}
	} else {
		res = b.fallback(ctx, batch)
	}

	b.mu.Lock()
	b.flushing = make(map[string]model.SparqlTask)
	old := b.stallCh
	b.stallCh = make(chan struct{})
	b.mu.Unlock()
	close(old)

	if callback != nil {
		callback(res)
	}
}

// fallback re-executes each task individually via the store's synchronous
// API, per spec §4.9's "on failure, retry each update individually".
func (b *Buffer) fallback(ctx context.Context, batch []model.SparqlTask) Result {
	var failed []FailedTask
	for _, t := range batch {
		if err := b.store.Update(ctx, taskToSparql(t)); err != nil {
			failed = append(failed, FailedTask{File: t.File, Message: err.Error()})
		}
	}
	return Result{Succeeded: len(failed) == 0, Failed: failed}
}

func addBatchEntry(batch api.Batch, t model.SparqlTask) {
	if t.Payload.Sparql != "" {
		batch.AddSparql(t.Payload.Sparql)
		return
	}
	batch.AddResource(t.Payload.Graph, t.Payload.Resource)
}

func taskToSparql(t model.SparqlTask) string {
	if t.Payload.Sparql != "" {
		return t.Payload.Sparql
	}
	return t.Payload.Graph
}
