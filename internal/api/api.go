// Package api defines the external interfaces (spec §6) through which the
// indexing and archive engines talk to their host: the miner's process/
// remove/move callbacks, the data provider abstraction, and the store
// (SPARQL-ish) client. Concrete implementations live in sibling packages
// (internal/provider, internal/store/memstore, internal/store/rpcstore);
// this package only fixes the contracts.
package api

import (
	"context"

	"github.com/trackerminers/filesystem-miner/internal/model"
)

// UpdateBuffer is the narrow interface the host uses to stage a store
// update from within a process/remove/move callback. Implementations must
// not block; at most one logical update is appended per invocation.
type UpdateBuffer interface {
	Push(file, graph, resource string)
	PushSparql(file, sparql string)
}

// MinerHost is the set of callbacks the Miner Core (C10) invokes as it
// dispatches events. Each method must return quickly and without blocking;
// long-running work should be staged and performed asynchronously by the
// host.
type MinerHost interface {
	// ProcessFile handles a Created or Updated (non-attributes-only) event.
	ProcessFile(ctx context.Context, file string, info model.FileInfo, buffer UpdateBuffer, created bool) error
	// ProcessFileAttributes handles an attributes-only Updated event.
	ProcessFileAttributes(ctx context.Context, file string, info model.FileInfo, buffer UpdateBuffer) error
	// RemoveFile handles a Deleted event for a single file or empty
	// directory.
	RemoveFile(ctx context.Context, file string, buffer UpdateBuffer, isDir bool) error
	// RemoveChildren handles the removal of a directory's recorded
	// descendants without removing the directory's own record (used ahead
	// of a cross-root move per spec §4.7's move/delete recursion policy).
	RemoveChildren(ctx context.Context, file string, buffer UpdateBuffer) error
	// MoveFile handles a Moved event.
	MoveFile(ctx context.Context, dest, source string, buffer UpdateBuffer, recursive bool) error

	// Progress reports dispatch progress: fraction is processed /
	// (processed + remaining) clamped to [0.02, 1.00] whenever items are
	// known to exist; remainingSeconds is estimated from elapsed time
	// scaled by remaining/processed (spec §4.7).
	Progress(fraction float64, remainingSeconds float64)
	// Finished reports that every configured root has reconciled and the
	// sparql buffer has drained.
	Finished(elapsedSeconds float64, stats model.CrawlStats)
	// FinishedRoot reports that a single root has reconciled and drained.
	FinishedRoot(root *model.Root)

	// CurrentExtractorHash returns the extractor-version tag the host
	// considers current for the given MIME type; a mismatch against a
	// file's recorded hash forces re-extraction (spec §4.4).
	CurrentExtractorHash(mimetype string) string
}

// Enumerator yields batches of directory children. NextBatch returns fewer
// than count entries only at end-of-stream.
type Enumerator interface {
	NextBatch(ctx context.Context, count int) ([]model.FileInfo, error)
	Close() error
}

// DataProvider abstracts directory enumeration (C2) so that the crawler is
// not bound to a direct OS implementation.
type DataProvider interface {
	Begin(ctx context.Context, dir string, flags model.RootFlags, priority model.Priority) (Enumerator, error)
}

// StoreRow is a single record returned by the store's reconciliation query:
// one row per known descendant of a root.
type StoreRow struct {
	URI           string
	FolderURN     string
	IsDir         bool
	StoreMtime    int64 // Unix nanoseconds
	ExtractorHash string
	Mimetype      string
}

// BatchResult reports the outcome of a batch store commit.
type BatchResult struct {
	// FailedFiles lists the files whose individual updates failed when a
	// batch commit itself failed and per-task fallback was attempted.
	FailedFiles map[string]error
}

// Batch accumulates store updates for a single atomic commit.
type Batch interface {
	AddResource(graph, resource string)
	AddSparql(sparql string)
	Execute(ctx context.Context) error
}

// StoreClient is the SPARQL-ish interface consumed by the Notifier, Sparql
// Buffer, and Decorator (spec §6).
type StoreClient interface {
	// QueryRootContents executes the per-root reconciliation query,
	// returning one row per known descendant of root.
	QueryRootContents(ctx context.Context, rootURI string) ([]StoreRow, error)
	// Update executes a single SPARQL update synchronously (used for
	// per-task fallback after a batch failure).
	Update(ctx context.Context, sparql string) error
	// CreateBatch begins a new atomic batch.
	CreateBatch() Batch
	// CountPending returns the number of resources matching the decorator's
	// count_query: every resource still lacking extraction metadata, whether
	// or not it lies in one of priorityGraphs.
	CountPending(ctx context.Context, priorityGraphs []string) (int, error)
	// PagePending returns up to limit rows starting at offset, ordered with
	// priorityGraphs first, matching the decorator's page_query.
	PagePending(ctx context.Context, priorityGraphs []string, limit, offset int) ([]model.DecoratorInfo, error)
	// Subscribe registers a change-notification callback; events carry the
	// resource ID and whether it was created, updated, or deleted.
	Subscribe(callback func(ChangeEvent))
}

// ChangeEventKind enumerates store change-notification kinds.
type ChangeEventKind uint8

const (
	ChangeCreate ChangeEventKind = iota
	ChangeUpdate
	ChangeDelete
)

// ChangeEvent is a single store change notification.
type ChangeEvent struct {
	ID   string
	Kind ChangeEventKind
}

// ArchiveByteSink is the destination side of the archive codec's byte
// stream abstraction (used by the compressor).
type ArchiveByteSink interface {
	Open() error
	Write(data []byte) (int, error)
	Close() error
}

// ArchiveByteSource is the origin side of the archive codec's byte stream
// abstraction (used by the extractor); Seek/Skip enable the codec's raw
// format fallback.
type ArchiveByteSource interface {
	Open() error
	Read(buffer []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Skip(count int64) (int64, error)
	Close() error
}
