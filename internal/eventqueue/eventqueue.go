// Package eventqueue implements the Event Queue (C8): a per-miner priority
// queue of pending QueueEvents with the pairwise coalescing rules of spec
// §4.6, descendant-purge on delete/move, and a blocker mechanism that
// pauses dispatch while a dependent file's update is still committing.
// It is built on internal/queue's priority queue (C6).
package eventqueue

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/queue"
)

// node is the queue payload: the event plus bookkeeping needed for
// descendant-purge and lookup-by-file.
type node struct {
	event  model.QueueEvent
	handle *queue.Handle
}

// Queue is the per-miner event queue.
type Queue struct {
	mu         sync.Mutex
	inner      *queue.Queue
	byFile     map[string]*node // file -> pending node, at most one per file
	byDestFile map[string]*node // destination file -> pending node, for pending Moved events only
	blocker    string           // non-empty while the dispatcher is waiting on a move's src/dst
}

// New creates an empty event queue.
func New() *Queue {
	return &Queue{
		inner:      queue.New(),
		byFile:     make(map[string]*node),
		byDestFile: make(map[string]*node),
	}
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byFile)
}

// index records n under byFile (always) and, if n's event is a pending
// Moved, also under byDestFile — so a later event landing on either the
// move's source or its destination can find it.
func (q *Queue) index(n *node) {
	q.byFile[n.event.File] = n
	if n.event.Kind == model.EventMoved {
		q.byDestFile[n.event.DestFile] = n
	}
}

// unindex removes n from whichever of byFile/byDestFile it was filed
// under, mirroring index.
func (q *Queue) unindex(n *node) {
	delete(q.byFile, n.event.File)
	if n.event.Kind == model.EventMoved {
		delete(q.byDestFile, n.event.DestFile)
	}
}

// find returns the pending node for file, whether it was enqueued directly
// under file or is a pending Moved event whose destination is file.
func (q *Queue) find(file string) (*node, bool) {
	if n, ok := q.byFile[file]; ok {
		return n, true
	}
	n, ok := q.byDestFile[file]
	return n, ok
}

// Enqueue adds ev to the queue, applying coalescing against any pending
// event on the same file, and the descendant-purge rules for Deleted and
// Moved directory events.
func (q *Queue) Enqueue(ev model.QueueEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ev.Kind == model.EventDeleted && ev.IsDir {
		q.purgeUnder(ev.File)
	}
	if ev.Kind == model.EventMoved {
		q.purgeUnder(ev.DestFile)
	}

	priority := 0
	if ev.Priority == model.PriorityHigh {
		priority = 1
	}

	existing, ok := q.find(ev.File)
	if ok && existing.event.File != ev.File && ev.Kind != model.EventMoved && ev.Kind != model.EventDeleted {
		// ev lands on a pending move's destination and no rule pairs the
		// two, so it is queued beside the move instead of replacing it.
		ok = false
	}
	if !ok {
		n := &node{event: ev}
		n.handle = q.inner.Push(n, priority)
		q.index(n)
		return
	}

	merged, keep := coalesce(existing.event, ev)
	if !keep {
		// Both inputs are dropped in favor of a synthesized replacement
		// (e.g. Created+Moved -> Created(dest), Moved+Moved -> Moved,
		// Moved+Deleted(dest) -> Deleted(src)). merged may be filed under
		// a different file than either input, so reindex from scratch.
		q.inner.Remove(existing.handle)
		q.unindex(existing)
		n := &node{event: merged}
		n.handle = q.inner.Push(n, priority)
		q.index(n)
		return
	}

	// keep == true means the existing node's event is replaced in place by
	// merged (which may just be the existing event, unchanged). merged may
	// differ from the existing event in kind or destination, so the node is
	// reindexed around the change.
	q.unindex(existing)
	existing.event = merged
	q.index(existing)
}

// purgeUnder removes every pending event whose file is dir or a descendant
// of dir.
func (q *Queue) purgeUnder(dir string) {
	for file, n := range q.byFile {
		if file == dir || isDescendant(dir, file) {
			q.inner.Remove(n.handle)
			q.unindex(n)
		}
	}
}

func isDescendant(dir, file string) bool {
	dir = filepath.Clean(dir)
	file = filepath.Clean(file)
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(file, prefix)
}

// Blocked reports whether the queue is currently blocked on the given file
// (i.e. a Move involving this file is in flight and has not yet committed).
func (q *Queue) Blocked(file string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blocker != "" && q.blocker == file
}

// SetBlocker marks file as the current blocker (or clears it if file is
// empty), per spec §4.6 rule 5.
func (q *Queue) SetBlocker(file string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocker = file
}

// Dequeue removes and returns the highest-priority, earliest-enqueued
// event. While that event's file or destination is the current blocker,
// it returns nothing and leaves the queue unchanged.
func (q *Queue) Dequeue() (model.QueueEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	value, ok := q.inner.Peek()
	if !ok {
		return model.QueueEvent{}, false
	}
	n := value.(*node)
	if q.blocker != "" && (n.event.File == q.blocker || n.event.DestFile == q.blocker) {
		return model.QueueEvent{}, false
	}

	q.inner.Pop()
	q.unindex(n)
	return n.event, true
}

// coalesce applies the pairwise rule table of spec §4.6 for an existing
// pending event A and a newly-enqueued event B on the same file. It
// returns (result, true) when B should simply update A in place, or
// (result, false) when both A and B are replaced by result (which may need
// to be filed under a different file key than the one coalesce was called
// with — the caller handles that rekeying).
func coalesce(a, b model.QueueEvent) (model.QueueEvent, bool) {
	switch {
	case a.Kind == model.EventCreated && b.Kind == model.EventUpdated:
		return a, true
	case a.Kind == model.EventCreated && b.Kind == model.EventCreated:
		return a, true
	case a.Kind == model.EventCreated && b.Kind == model.EventMoved:
		created := model.QueueEvent{
			Kind:     model.EventCreated,
			File:     b.DestFile,
			Info:     b.Info,
			IsDir:    b.IsDir,
			Priority: b.Priority,
			RootPath: b.RootPath,
		}
		return created, false
	case a.Kind == model.EventCreated && b.Kind == model.EventDeleted:
		// The create never reached the store, but we can't prove it, so we
		// keep the Deleted to be safe (documented overapproximation).
		return b, true
	case a.Kind == model.EventUpdated && b.Kind == model.EventUpdated:
		if a.AttributesOnly && !b.AttributesOnly {
			return b, true
		}
		return a, true
	case a.Kind == model.EventUpdated && b.Kind == model.EventDeleted:
		return b, true
	case a.Kind == model.EventMoved && b.Kind == model.EventMoved && a.DestFile == b.File:
		moved := model.QueueEvent{
			Kind:     model.EventMoved,
			File:     a.File,
			DestFile: b.DestFile,
			IsDir:    b.IsDir,
			Priority: b.Priority,
			RootPath: b.RootPath,
		}
		return moved, false
	case a.Kind == model.EventMoved && b.Kind == model.EventDeleted && a.DestFile == b.File:
		deleted := model.QueueEvent{
			Kind:     model.EventDeleted,
			File:     a.File,
			IsDir:    b.IsDir,
			Priority: b.Priority,
			RootPath: b.RootPath,
		}
		return deleted, false
	case a.Kind == model.EventDeleted && b.Kind == model.EventDeleted:
		return a, true
	default:
		// "otherwise: keep both" — not expressible without a second node on
		// the same file key, which would violate invariant 1 (at most one
		// pending event per file), so a same-key pair no rule covers (e.g.
		// Deleted then Created) replaces A with B. Events landing on a
		// pending move's destination never get here: Enqueue queues them
		// beside the move unless a rule above pairs them.
		return b, true
	}
}
