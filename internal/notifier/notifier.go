// Package notifier implements the File Notifier (C7): the reconciliation
// engine that walks disk and store in parallel for each root, diffs the
// two views into QueueEvents, and translates live monitor events into
// QueueEvents once steady state is reached. Modeled on the teacher's
// session.Controller single-goroutine state-machine shape (deleted
// package, pattern kept) applied to the CRAWLING/REPORTING reconciliation
// cycle of spec §4.4.
package notifier

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/crawler"
	"github.com/trackerminers/filesystem-miner/internal/indexing"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/monitor"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

// RootState is the per-root reconciliation state machine of spec §4.4.
type RootState uint8

const (
	StateIdle RootState = iota
	StateCrawling
	StateReporting
)

// HashForMimetype names the extractor version for a given MIME type; a
// changed hash forces re-extraction of an otherwise-unmodified file.
type HashForMimetype func(mimetype string) string

// Notifier owns the per-root reconciliation passes and the monitor->queue
// translation of spec §4.8.
type Notifier struct {
	tree     *indexing.Tree
	provider api.DataProvider
	crawler  *crawler.Crawler
	store    api.StoreClient
	mon      *monitor.Monitor
	hashFor  HashForMimetype
	logger   *logging.Logger

	emit func(model.QueueEvent)

	mu    sync.Mutex
	roots map[string]*rootRun // root path -> in-flight or last-known run
}

type rootRun struct {
	root   *model.Root
	state  RootState
	cancel context.CancelFunc
	recon  map[string]*model.FileData // file -> reconciliation record, live only during CRAWLING
}

// New creates a Notifier. emit is called once per synthesized QueueEvent,
// typically internal/eventqueue.Queue.Enqueue.
func New(tree *indexing.Tree, provider api.DataProvider, cr *crawler.Crawler, store api.StoreClient, mon *monitor.Monitor, hashFor HashForMimetype, logger *logging.Logger, emit func(model.QueueEvent)) *Notifier {
	return &Notifier{
		tree:     tree,
		provider: provider,
		crawler:  cr,
		store:    store,
		mon:      mon,
		hashFor:  hashFor,
		logger:   logger,
		emit:     emit,
		roots:    make(map[string]*rootRun),
	}
}

// StartRoot begins the CRAWLING state for root: concurrent DiskPass and
// StorePass, followed by REPORTING (diff emission), followed by IDLE.
func (n *Notifier) StartRoot(ctx context.Context, root *model.Root) {
	runCtx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	n.roots[root.Path] = &rootRun{root: root, state: StateCrawling, cancel: cancel, recon: make(map[string]*model.FileData)}
	n.mu.Unlock()

	go n.run(runCtx, root)
}

// CancelRoot aborts in-flight reconciliation for a root that the host is
// removing, per spec §4.4's "root-removal mid-flight" rule. If preserve is
// false, a Deleted(is_dir=true) event is emitted for the root first.
func (n *Notifier) CancelRoot(root *model.Root, preserve bool) {
	n.mu.Lock()
	run, ok := n.roots[root.Path]
	if ok {
		run.cancel()
		delete(n.roots, root.Path)
	}
	n.mu.Unlock()

	n.mon.Unwatch(root.Path)

	if !preserve {
		n.emit(model.QueueEvent{Kind: model.EventDeleted, File: root.Path, IsDir: true, RootPath: root.Path})
	}
}

func (n *Notifier) run(ctx context.Context, root *model.Root) {
	var wg sync.WaitGroup
	recon := make(map[string]*model.FileData)
	var reconMu sync.Mutex

	var diskErr, storeErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		diskErr = n.diskPass(ctx, root, recon, &reconMu)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		storeErr = n.storePass(ctx, root, recon, &reconMu)
	}()

	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	if diskErr != nil || storeErr != nil {
		if n.logger != nil {
			n.logger.Warnf("reconciliation failed for root %q: disk=%v store=%v", root.Path, diskErr, storeErr)
		}
		return
	}

	n.report(root, recon)

	n.mu.Lock()
	delete(n.roots, root.Path)
	n.mu.Unlock()
}

// diskPass is the breadth-first walk of pending directories via the
// crawler; each yielded child creates or updates a FileData with
// in_disk=true.
func (n *Notifier) diskPass(ctx context.Context, root *model.Root, recon map[string]*model.FileData, mu *sync.Mutex) error {
	pending := []string{root.Path}

	for len(pending) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		dir := pending[0]
		pending = pending[1:]

		node, err := n.crawler.Get(ctx, dir, model.FileInfo{}, root.Flags)
		if err != nil {
			return err
		}

		mu.Lock()
		n.mergeDisk(recon, node)
		mu.Unlock()

		for _, child := range node.Children {
			if child.Info.IsDir() {
				pending = append(pending, child.Path)
			}
		}
	}
	return nil
}

func (n *Notifier) mergeDisk(recon map[string]*model.FileData, node *model.TreeNode) {
	for _, child := range node.Children {
		path := child.Path
		fd := recon[path]
		if fd == nil {
			fd = &model.FileData{File: path}
			recon[path] = fd
		}
		fd.InDisk = true
		fd.IsDirInDisk = child.Info.IsDir()
		fd.DiskMtime = child.Info.Mtime
		fd.Mimetype = child.Info.Mime
	}
}

// storePass executes the reconciliation query against the store and
// merges each returned row into the reconciliation map with in_store=true.
func (n *Notifier) storePass(ctx context.Context, root *model.Root, recon map[string]*model.FileData, mu *sync.Mutex) error {
	rows, err := n.store.QueryRootContents(ctx, root.Path)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	for _, row := range rows {
		fd := recon[row.URI]
		if fd == nil {
			fd = &model.FileData{File: row.URI}
			recon[row.URI] = fd
		}
		fd.InStore = true
		fd.IsDirInStore = row.IsDir
		fd.StoreMtime = time.Unix(0, row.StoreMtime)
		fd.ExtractorHash = row.ExtractorHash
		if row.Mimetype != "" {
			fd.Mimetype = row.Mimetype
		}
	}
	return nil
}

// report computes ComputeState for every reconciliation record and emits a
// QueueEvent for each non-None state, then logs that the root finished
// reconciliation. No directory-finished or finished signal is sent.
func (n *Notifier) report(root *model.Root, recon map[string]*model.FileData) {
	for path, fd := range recon {
		hash := ""
		if n.hashFor != nil {
			hash = n.hashFor(fd.Mimetype)
		}
		switch fd.ComputeState(hash) {
		case model.StateCreate:
			n.emit(model.QueueEvent{Kind: model.EventCreated, File: path, IsDir: fd.IsDirInDisk, RootPath: root.Path, Priority: rootPriority(root)})
		case model.StateUpdate:
			n.emit(model.QueueEvent{Kind: model.EventUpdated, File: path, IsDir: fd.IsDirInDisk, RootPath: root.Path, Priority: rootPriority(root)})
		case model.StateDelete:
			n.emit(model.QueueEvent{Kind: model.EventDeleted, File: path, IsDir: fd.IsDirInStore, RootPath: root.Path, Priority: rootPriority(root)})
		}
	}

	if n.logger != nil {
		n.logger.Infof("root %q finished reconciliation: %d records examined", root.Path, len(recon))
	}
}

func rootPriority(root *model.Root) model.Priority {
	if root.Flags.Has(model.FlagPriority) {
		return model.PriorityHigh
	}
	return model.PriorityNormal
}

// HandleMonitorEvent translates a live monitor.Event into zero or more
// QueueEvents, per the rules of spec §4.8.
func (n *Notifier) HandleMonitorEvent(ev monitor.Event) {
	root, ok := n.tree.GetRoot(ev.Path)
	if !ok {
		return
	}

	switch ev.Kind {
	case monitor.EventCreated:
		n.handleCreated(root, ev)
	case monitor.EventUpdated:
		n.emit(model.QueueEvent{Kind: model.EventUpdated, File: ev.Path, IsDir: ev.IsDir, RootPath: root.Path, Priority: rootPriority(root)})
	case monitor.EventAttributeUpdated:
		n.emit(model.QueueEvent{Kind: model.EventUpdated, File: ev.Path, IsDir: ev.IsDir, AttributesOnly: true, RootPath: root.Path, Priority: rootPriority(root)})
	case monitor.EventDeleted:
		n.handleDeleted(root, ev)
	case monitor.EventMoved:
		n.handleMoved(root, ev)
	}
}

func (n *Notifier) handleCreated(root *model.Root, ev monitor.Event) {
	parent := filepath.Dir(ev.Path)
	if !ev.IsDir {
		if !n.tree.ParentIsIndexable(parent, nil) {
			n.emit(model.QueueEvent{Kind: model.EventDeleted, File: parent, IsDir: true, RootPath: root.Path})
			n.mon.Unwatch(parent)
			return
		}
		n.emit(model.QueueEvent{Kind: model.EventCreated, File: ev.Path, RootPath: root.Path, Priority: rootPriority(root)})
		return
	}

	n.emit(model.QueueEvent{Kind: model.EventCreated, File: ev.Path, IsDir: true, RootPath: root.Path, Priority: rootPriority(root)})
	if root.Flags.Has(model.FlagRecurse) {
		n.mon.Watch(ev.Path)
		// Only the directory itself is queued and watched; no crawl of
		// the new subtree is started here.
	}
}

func (n *Notifier) handleDeleted(root *model.Root, ev monitor.Event) {
	n.mon.Unwatch(ev.Path)
	n.emit(model.QueueEvent{Kind: model.EventDeleted, File: ev.Path, IsDir: ev.IsDir, RootPath: root.Path, Priority: rootPriority(root)})

	// A deletion may have removed whatever tripped the parent's content
	// filter. The parent is re-checked here, but the result is discarded
	// and no re-crawl of the parent is started.
	_ = n.tree.ParentIsIndexable(filepath.Dir(ev.Path), nil)
}

func (n *Notifier) handleMoved(root *model.Root, ev monitor.Event) {
	info := model.FileInfo{}
	if ev.IsDir {
		info.Type = model.FileTypeDirectory
	}
	srcIndexable := n.tree.IsIndexable(ev.Path, info)
	dstIndexable := n.tree.IsIndexable(ev.Dest, info)

	switch {
	case !srcIndexable && dstIndexable:
		n.handleCreated(root, monitor.Event{Kind: monitor.EventCreated, Path: ev.Dest, IsDir: ev.IsDir})
	case srcIndexable && !dstIndexable:
		n.mon.Unwatch(ev.Path)
		n.emit(model.QueueEvent{Kind: model.EventDeleted, File: ev.Path, IsDir: ev.IsDir, RootPath: root.Path, Priority: rootPriority(root)})
	default:
		if ev.IsDir {
			n.mon.Unwatch(ev.Path)
			n.mon.Watch(ev.Dest)
		}
		n.emit(model.QueueEvent{Kind: model.EventMoved, File: ev.Path, DestFile: ev.Dest, IsDir: ev.IsDir, RootPath: root.Path, Priority: rootPriority(root)})
		if extensionChanged(ev.Path, ev.Dest) {
			n.emit(model.QueueEvent{Kind: model.EventUpdated, File: ev.Dest, RootPath: root.Path, Priority: rootPriority(root)})
		}
	}
}

func extensionChanged(src, dst string) bool {
	return strings.ToLower(filepath.Ext(src)) != strings.ToLower(filepath.Ext(dst))
}
