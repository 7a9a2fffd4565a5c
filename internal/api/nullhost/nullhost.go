// Package nullhost provides a reference api.MinerHost: it logs every
// dispatch callback and stages a trivial "file seen" graph update through
// the api.UpdateBuffer each callback is handed, so the Miner Core (C10) can be driven end-to-end in
// "miner demo" and in component tests without a real triple-store or
// extraction pipeline behind it.
package nullhost

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/cache"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

// fileGraph is the fixed graph name trivial updates are staged under.
const fileGraph = "tracker:FileSystem"

// folderURNCacheCapacity bounds the number of parent-folder URNs kept
// memoized; it need only be large enough to cover the directories actively
// being dispatched into at once.
const folderURNCacheCapacity = 4096

// Host is a trivial, fully logging api.MinerHost.
type Host struct {
	logger *logging.Logger
	store  api.StoreClient
	urns   *cache.FolderURNCache

	elapsedSeconds func() float64
}

// New creates a Host that logs through logger and stages updates through
// store. elapsedSeconds, if non-nil, is called to compute the value
// reported by Finished; tests can supply a fixed function for determinism.
func New(store api.StoreClient, logger *logging.Logger, elapsedSeconds func() float64) *Host {
	return &Host{
		logger:         logger,
		store:          store,
		urns:           cache.New(folderURNCacheCapacity),
		elapsedSeconds: elapsedSeconds,
	}
}

// folderURN returns the folder resource URN for dir, memoizing it across
// calls so repeated files in the same directory don't recompute it.
func (h *Host) folderURN(dir string) string {
	if urn, ok := h.urns.Get(dir); ok {
		return urn
	}
	urn := resourceURI(dir)
	h.urns.Add(dir, urn)
	return urn
}

// insertWithParentSparql returns a single SPARQL update that both records
// file's resource in fileGraph and links it to its parent folder's
// (memoized) URN, replacing the separate Push/PushSparql calls that would
// otherwise race for the same buffer slot.
func (h *Host) insertWithParentSparql(file string) string {
	parent := h.folderURN(filepath.Dir(file))
	return fmt.Sprintf(
		"INSERT DATA { GRAPH <%s> { <%s> a tracker:File ; tracker:isChildOf <%s> } }",
		fileGraph, resourceURI(file), parent,
	)
}

func (h *Host) logf(format string, v ...interface{}) {
	if h.logger != nil {
		h.logger.Infof(format, v...)
	}
}

// ProcessFile implements api.MinerHost.
func (h *Host) ProcessFile(ctx context.Context, file string, info model.FileInfo, buffer api.UpdateBuffer, created bool) error {
	verb := "updated"
	if created {
		verb = "created"
	}
	h.logf("%s: %s (%d bytes)", verb, file, info.Size)
	buffer.PushSparql(file, h.insertWithParentSparql(file))
	return nil
}

// ProcessFileAttributes implements api.MinerHost.
func (h *Host) ProcessFileAttributes(ctx context.Context, file string, info model.FileInfo, buffer api.UpdateBuffer) error {
	h.logf("attributes updated: %s", file)
	buffer.Push(file, fileGraph, resourceURI(file))
	return nil
}

// RemoveFile implements api.MinerHost.
func (h *Host) RemoveFile(ctx context.Context, file string, buffer api.UpdateBuffer, isDir bool) error {
	h.logf("removed: %s (dir=%v)", file, isDir)
	buffer.PushSparql(file, deleteSparql(resourceURI(file)))
	return nil
}

// RemoveChildren implements api.MinerHost.
func (h *Host) RemoveChildren(ctx context.Context, file string, buffer api.UpdateBuffer) error {
	h.logf("removed children of: %s", file)
	buffer.PushSparql(file, deleteChildrenSparql(resourceURI(file)))
	return nil
}

// MoveFile implements api.MinerHost.
func (h *Host) MoveFile(ctx context.Context, dest, source string, buffer api.UpdateBuffer, recursive bool) error {
	h.logf("moved: %s -> %s (recursive=%v)", source, dest, recursive)
	buffer.Push(dest, fileGraph, resourceURI(dest))
	buffer.PushSparql(source, deleteSparql(resourceURI(source)))
	return nil
}

// Progress implements api.MinerHost.
func (h *Host) Progress(fraction float64, remainingSeconds float64) {
	h.logf("progress: %.1f%% (%.0fs remaining)", fraction*100, remainingSeconds)
}

// Finished implements api.MinerHost.
func (h *Host) Finished(elapsedSeconds float64, stats model.CrawlStats) {
	h.logf("finished in %.1fs: %d dirs, %d files", elapsedSeconds, stats.DirsFound, stats.FilesFound)
}

// FinishedRoot implements api.MinerHost.
func (h *Host) FinishedRoot(root *model.Root) {
	h.logf("finished root: %s", root.Path)
}

// CurrentExtractorHash implements api.MinerHost. The null host has no
// extractors, so every mimetype is reported as already current, which
// prevents the decorator from scheduling any re-extraction work against it.
func (h *Host) CurrentExtractorHash(mimetype string) string {
	return "nullhost-v1"
}

func resourceURI(file string) string {
	return "file://" + file
}

func deleteSparql(uri string) string {
	return fmt.Sprintf("DELETE WHERE { <%s> ?p ?o }", uri)
}

func deleteChildrenSparql(parentURI string) string {
	return fmt.Sprintf("DELETE WHERE { ?child tracker:isChildOf <%s> ; ?p ?o }", parentURI)
}
