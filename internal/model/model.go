// Package model defines the data types shared across the indexing and
// archive engines: roots and their flags, file metadata, queue events,
// reconciliation records, and archive entries.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// RootFlags is a bitmask of per-root indexing behaviors.
type RootFlags uint16

const (
	// FlagRecurse indicates that subdirectories of the root should be
	// indexed recursively.
	FlagRecurse RootFlags = 1 << iota
	// FlagMonitor indicates that the root should be watched for live
	// filesystem changes after the initial crawl.
	FlagMonitor
	// FlagCheckMtime indicates that modification times should be compared
	// against the store to detect updates.
	FlagCheckMtime
	// FlagNoStat indicates that file stat information should not be
	// queried (only names are indexed).
	FlagNoStat
	// FlagPriority indicates that events originating under this root are
	// dispatched at high priority.
	FlagPriority
	// FlagIgnore indicates that the root is registered but not indexed.
	FlagIgnore
	// FlagPreserve indicates that on root removal, no Deleted event should
	// be emitted for the root directory itself.
	FlagPreserve
	// FlagCheckDeleted indicates that the store should be consulted to
	// detect files that have disappeared from disk.
	FlagCheckDeleted
)

// Has reports whether all bits in other are set in f.
func (f RootFlags) Has(other RootFlags) bool {
	return f&other == other
}

// Root is an absolute path configured for indexing, along with its flags.
// Roots form a forest: no root may be an ancestor of another.
type Root struct {
	// ID is a collision-resistant identifier assigned when the root is
	// registered with the indexing tree.
	ID string
	// Path is the absolute filesystem path of the root.
	Path string
	// Flags controls indexing behavior for this root.
	Flags RootFlags
}

// Contains reports whether path is equal to or a descendant of the root's
// path.
func (r *Root) Contains(path string) bool {
	return pathEqualOrDescendant(r.Path, path)
}

// pathEqualOrDescendant reports whether child is equal to parent or lies
// under it, using lexical path comparison (no filesystem access).
func pathEqualOrDescendant(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if parent == child {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// FileType enumerates the kinds of filesystem entries this system
// distinguishes.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
	FileTypeSpecial
	FileTypeShortcut
	FileTypeMountable
)

// FileInfo is a semantic record of file metadata. Any field may be the
// type's zero value when not known; the struct does not record which
// fields were populated, so "absent" and "zero" look the same.
type FileInfo struct {
	Name    string
	Type    FileType
	Size    int64
	Mtime   time.Time
	Atime   time.Time
	Ctime   time.Time
	Birth   time.Time
	UID     uint32
	GID     uint32
	User    string
	Group   string
	Mode    uint32
	Device  uint64
	Inode   uint64
	Nlink   uint32
	Rdev    uint64
	Symlink string
	Mime    string
	Hidden  bool
}

// IsDir reports whether the file info describes a directory.
func (fi *FileInfo) IsDir() bool {
	return fi.Type == FileTypeDirectory
}

// CrawlStats accumulates per-directory crawl counters.
type CrawlStats struct {
	DirsFound   int
	DirsIgnored int
	FilesFound  int
	FilesIgnored int
}

// Add accumulates the counters of other into s.
func (s *CrawlStats) Add(other CrawlStats) {
	s.DirsFound += other.DirsFound
	s.DirsIgnored += other.DirsIgnored
	s.FilesFound += other.FilesFound
	s.FilesIgnored += other.FilesIgnored
}

// TreeNode is a node of the tree produced by the crawler for a single
// directory pass. Children are the direct entries found, in crawl order;
// Stats are accumulated for the subtree rooted at this node.
type TreeNode struct {
	Path     string
	Info     FileInfo
	Children []*TreeNode
	Stats    CrawlStats
}

// EventKind enumerates the kinds of queue events.
type EventKind uint8

const (
	EventCreated EventKind = iota
	EventUpdated
	EventDeleted
	EventMoved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	case EventMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Priority is the dispatch priority of a queue event, derived from the
// owning root's FlagPriority.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// QueueEvent is a single pending change destined for the event queue.
type QueueEvent struct {
	Kind            EventKind
	File            string
	Info            *FileInfo
	DestFile        string
	AttributesOnly  bool
	IsDir           bool
	Priority        Priority
	RootPath        string
}

// ReconcileState is the derived state of a FileData record.
type ReconcileState uint8

const (
	StateNone ReconcileState = iota
	StateCreate
	StateUpdate
	StateDelete
)

// FileData is a per-file reconciliation record built by the Notifier while
// diffing disk state against store state for one root pass.
type FileData struct {
	File           string
	InDisk         bool
	InStore        bool
	IsDirInDisk    bool
	IsDirInStore   bool
	StoreMtime     time.Time
	DiskMtime      time.Time
	ExtractorHash  string
	Mimetype       string
}

// ComputeState implements the reconciliation rule of spec §4.4: state is a
// pure function of the presence/absence and mtimes/hash recorded above.
// currentHash is the extractor-version hash for this file's MIME type, as
// supplied by the host; a mismatch against ExtractorHash forces Update.
func (d *FileData) ComputeState(currentHash string) ReconcileState {
	switch {
	case d.InDisk && d.InStore:
		if !d.StoreMtime.Equal(d.DiskMtime) || d.ExtractorHash != currentHash {
			return StateUpdate
		}
		return StateNone
	case d.InDisk && !d.InStore:
		return StateCreate
	case !d.InDisk && d.InStore:
		return StateDelete
	default:
		// !InDisk && !InStore is impossible: the record would never have
		// been created in the first place.
		return StateNone
	}
}

// DecoratorInfo is a single unit of extraction work handed to a consumer by
// the Decorator.
type DecoratorInfo struct {
	URN        string
	URL        string
	Mimetype   string
	ID         string
	TaskHandle string
}

// SparqlPayload is either a resource insertion or a raw SPARQL update
// string. Exactly one of Graph/Resource or Sparql should be set.
type SparqlPayload struct {
	Graph    string
	Resource string
	Sparql   string
}

// TaskState is the lifecycle state of a SparqlTask within the buffer.
type TaskState uint8

const (
	TaskUnknown TaskState = iota
	TaskQueued
	TaskFlushing
)

// SparqlTask is a single pending store update, owned by the sparql buffer
// for one file until its containing batch commits or is discarded.
type SparqlTask struct {
	File    string
	Payload SparqlPayload
	State   TaskState
}

// ArchiveEntryType mirrors the archive codec's entry-type concept.
type ArchiveEntryType uint8

const (
	ArchiveEntryRegular ArchiveEntryType = iota
	ArchiveEntryDirectory
	ArchiveEntrySymlink
	ArchiveEntryHardlink
	ArchiveEntryFIFO
	ArchiveEntrySocket
	ArchiveEntryBlockDevice
	ArchiveEntryCharDevice
)

// ArchiveEntry mirrors the codec's entry concept for both compression and
// extraction.
type ArchiveEntry struct {
	Pathname    string
	Type        ArchiveEntryType
	Size        int64
	Mode        uint32
	UID, GID    uint32
	Uname, Gname string
	Mtime, Atime, Ctime time.Time
	Device, Inode uint64
	Nlink       uint32
	Rdev        uint64
	SymlinkTarget string
	HardlinkTarget string
}

// RootProcessingContext tracks the in-progress state of one root being
// reconciled by the Notifier.
type RootProcessingContext struct {
	Root            *Root
	CurrentDir      string
	PendingDirs     []string
	Stats           CrawlStats
	ContentFiltered bool
	IgnoreRoot      bool
}
