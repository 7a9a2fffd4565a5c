// Package miner implements the Miner Core (C10): the dispatcher that owns
// the event queue and sparql buffer, pulls events at background priority,
// invokes the host's process/remove/move callbacks, and reports progress.
// Modeled on the teacher's session.Controller dispatch loop (deleted
// package, loop shape kept) generalized from sync-session ticking to
// filesystem-event dispatch.
package miner

import (
	"context"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/eventqueue"
	"github.com/trackerminers/filesystem-miner/internal/indexing"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/sparqlbuffer"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
	"github.com/trackerminers/filesystem-miner/pkg/numeric"
)

const (
	// maxSimultaneousItems bounds dispatch per scheduling slice, per spec
	// §4.7's "target 64".
	maxSimultaneousItems = 64

	// maxInterval is the idle interval used when throttle == 1.
	maxInterval = 1 * time.Second

	// progressInterval is the minimum spacing between progress reports.
	progressInterval = 1 * time.Second

	minProgress = 0.02
	maxProgress = 1.00
)

// Miner is the dispatch loop owning the event queue and sparql buffer.
type Miner struct {
	tree   *indexing.Tree
	queue  *eventqueue.Queue
	buffer *sparqlbuffer.Buffer
	host   api.MinerHost
	logger *logging.Logger

	throttle float64 // in [0,1]; scales the idle interval between dispatch slices

	processed int64
	remaining int64
	started   time.Time
	lastProgress time.Time
}

// New creates a Miner. throttle scales the idle interval between dispatch
// slices from 0 (no throttling) to maxInterval.
func New(tree *indexing.Tree, queue *eventqueue.Queue, buffer *sparqlbuffer.Buffer, host api.MinerHost, logger *logging.Logger, throttle float64) *Miner {
	return &Miner{
		tree:     tree,
		queue:    queue,
		buffer:   buffer,
		host:     host,
		logger:   logger,
		throttle: throttle,
		started:  time.Time{},
	}
}

// SetRemaining informs the progress estimator of the current known total
// item count (e.g. after a reconciliation pass emits its events).
func (m *Miner) SetRemaining(n int64) {
	m.remaining = n
}

// Run drives the dispatch loop until ctx is cancelled. It is intended to
// be run in its own goroutine.
func (m *Miner) Run(ctx context.Context) {
	m.started = time.Now()
	idle := time.Duration(float64(maxInterval) * m.throttle)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dispatched := m.dispatchSlice(ctx)
		if dispatched == 0 {
			if idle > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(idle):
				}
			}
			continue
		}
	}
}

// dispatchSlice pulls and processes up to maxSimultaneousItems events,
// returning the number actually dispatched.
func (m *Miner) dispatchSlice(ctx context.Context) int {
	n := 0
	for ; n < maxSimultaneousItems; n++ {
		ev, ok := m.queue.Dequeue()
		if !ok {
			break
		}
		m.dispatchOne(ctx, ev)
	}
	m.maybeReportProgress()
	return n
}

func (m *Miner) dispatchOne(ctx context.Context, ev model.QueueEvent) {
	var err error
	switch ev.Kind {
	case model.EventCreated, model.EventUpdated:
		if ev.AttributesOnly {
			err = m.host.ProcessFileAttributes(ctx, ev.File, infoOrZero(ev.Info), m.buffer)
		} else {
			err = m.host.ProcessFile(ctx, ev.File, infoOrZero(ev.Info), m.buffer, ev.Kind == model.EventCreated)
		}
	case model.EventDeleted:
		err = m.host.RemoveFile(ctx, ev.File, m.buffer, ev.IsDir)
	case model.EventMoved:
		recursive := m.recursionPolicy(ev)
		if ev.IsDir && m.crossesRecursionBoundary(ev) {
			if cErr := m.host.RemoveChildren(ctx, ev.File, m.buffer); cErr != nil && m.logger != nil {
				m.logger.Warnf("remove_children(%q) before move: %s", ev.File, cErr.Error())
			}
		}
		err = m.host.MoveFile(ctx, ev.DestFile, ev.File, m.buffer, recursive)
	}

	if err != nil && m.logger != nil {
		m.logger.Warnf("dispatch of %s(%q) failed: %s", ev.Kind, ev.File, err.Error())
	}

	m.processed++
	if m.remaining > 0 {
		m.remaining--
	}

	m.afterDispatch(ctx, ev)
}

// recursionPolicy implements spec §4.7's "recursive = src_recurse ∧
// dst_recurse ∧ is_dir".
func (m *Miner) recursionPolicy(ev model.QueueEvent) bool {
	if !ev.IsDir {
		return false
	}
	srcRoot, srcOK := m.tree.GetRoot(ev.File)
	dstRoot, dstOK := m.tree.GetRoot(ev.DestFile)
	if !srcOK || !dstOK {
		return false
	}
	return srcRoot.Flags.Has(model.FlagRecurse) && dstRoot.Flags.Has(model.FlagRecurse)
}

// crossesRecursionBoundary reports whether the move's source root is
// recursive but the destination root is not, per spec §4.7's "also issue a
// remove_children(source) before the move_file" rule.
func (m *Miner) crossesRecursionBoundary(ev model.QueueEvent) bool {
	srcRoot, srcOK := m.tree.GetRoot(ev.File)
	dstRoot, dstOK := m.tree.GetRoot(ev.DestFile)
	if !srcOK || !dstOK {
		return false
	}
	return srcRoot.Flags.Has(model.FlagRecurse) && !dstRoot.Flags.Has(model.FlagRecurse)
}

// afterDispatch implements spec §4.7's post-dispatch flush triggers: a
// flush is requested if the just-processed file was the current blocker,
// or the sparql buffer is at its soft limit.
func (m *Miner) afterDispatch(ctx context.Context, ev model.QueueEvent) {
	wasBlocker := m.queue.Blocked(ev.File) || m.queue.Blocked(ev.DestFile)
	if wasBlocker || m.buffer.Overloaded() {
		m.queue.SetBlocker("")
		m.buffer.Flush(ctx, nil)
	}
	if ev.Kind == model.EventMoved {
		m.queue.SetBlocker(ev.DestFile)
	}
}

func (m *Miner) maybeReportProgress() {
	now := time.Now()
	if !m.lastProgress.IsZero() && now.Sub(m.lastProgress) < progressInterval {
		return
	}
	m.lastProgress = now

	total := m.processed + m.remaining
	if total == 0 {
		m.host.Progress(maxProgress, 0)
		return
	}

	fraction := numeric.Clamp(float64(m.processed)/float64(total), minProgress, maxProgress)

	var remainingSeconds float64
	if m.processed > 0 {
		elapsed := now.Sub(m.started).Seconds()
		remainingSeconds = elapsed * float64(m.remaining) / float64(m.processed)
	}

	m.host.Progress(fraction, remainingSeconds)
}

func infoOrZero(info *model.FileInfo) model.FileInfo {
	if info == nil {
		return model.FileInfo{}
	}
	return *info
}
