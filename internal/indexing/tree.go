// Package indexing implements the Indexing Tree (C1): the registry of
// configured roots and the pure predicates that decide what is indexable.
// Mutation happens only from the host goroutine (spec §5's shared-resource
// policy); observer callbacks fire synchronously, mirroring the teacher's
// pkg/state.Tracker in spirit (index-based change notification) but
// simplified to direct callbacks since there is exactly one mutator.
package indexing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/identifier"
)

// EventKind enumerates the observer notifications the tree emits.
type EventKind uint8

const (
	EventDirectoryAdded EventKind = iota
	EventDirectoryUpdated
	EventDirectoryRemoved
	EventNotifyUpdate
)

// Event is delivered to observers registered via Subscribe.
type Event struct {
	Kind      EventKind
	Root      *model.Root
	Recursive bool
}

// ContentFilter decides whether a directory, given its already-enumerated
// children, should be admitted (spec §3's parent_is_indexable). A false
// result prunes the whole directory.
type ContentFilter func(parent string, children []model.FileInfo) bool

// FileFilter decides whether a single file or directory passes the tree's
// filters (spec §3's is_indexable / matches_filter).
type FileFilter func(file string, info model.FileInfo) bool

// Tree is the registry of roots plus the tree-wide filter settings.
type Tree struct {
	roots []*model.Root // kept sorted by Path for prefix search

	hiddenFilesIndexable bool
	fileFilters          []FileFilter
	contentFilters        []ContentFilter

	observers []func(Event)
}

// New creates an empty indexing tree.
func New() *Tree {
	return &Tree{}
}

// SetHiddenFilesIndexable sets the tree-wide policy for hidden files.
func (t *Tree) SetHiddenFilesIndexable(indexable bool) {
	t.hiddenFilesIndexable = indexable
}

// AddFileFilter registers an additional file-level filter. All registered
// filters must pass (AND semantics) for a file to be indexable.
func (t *Tree) AddFileFilter(f FileFilter) {
	t.fileFilters = append(t.fileFilters, f)
}

// AddContentFilter registers an additional directory content filter.
func (t *Tree) AddContentFilter(f ContentFilter) {
	t.contentFilters = append(t.contentFilters, f)
}

// Subscribe registers an observer callback for tree mutation events.
func (t *Tree) Subscribe(callback func(Event)) {
	t.observers = append(t.observers, callback)
}

func (t *Tree) notify(ev Event) {
	for _, o := range t.observers {
		o(ev)
	}
}

// AddRoot registers a new root with the given path and flags. If path is
// equal to or under an existing root, this is instead treated as an
// idempotent update of that root's flags (forest invariant: no root may be
// an ancestor of another).
func (t *Tree) AddRoot(path string, flags model.RootFlags) (*model.Root, error) {
	path = cleanPath(path)

	if existing := t.get_root_exact_or_ancestor(path); existing != nil {
		existing.Flags = flags
		t.notify(Event{Kind: EventDirectoryUpdated, Root: existing})
		return existing, nil
	}

	id, err := identifier.New(identifier.PrefixRoot)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate root identifier: %w", err)
	}

	root := &model.Root{ID: id, Path: path, Flags: flags}

	// Remove any existing roots that are descendants of the new root,
	// preserving the forest invariant.
	kept := t.roots[:0]
	for _, r := range t.roots {
		if root.Contains(r.Path) && r.Path != path {
			continue
		}
		kept = append(kept, r)
	}
	t.roots = kept

	t.roots = append(t.roots, root)
	sort.Slice(t.roots, func(i, j int) bool { return t.roots[i].Path < t.roots[j].Path })

	t.notify(Event{Kind: EventDirectoryAdded, Root: root})
	return root, nil
}

// UpdateRoot changes the flags of an existing root, identified by path.
// It is a no-op (idempotent) if the root is not registered.
func (t *Tree) UpdateRoot(path string, flags model.RootFlags) {
	path = cleanPath(path)
	for _, r := range t.roots {
		if r.Path == path {
			r.Flags = flags
			t.notify(Event{Kind: EventDirectoryUpdated, Root: r})
			return
		}
	}
}

// RemoveRoot unregisters the root at path. It is a no-op if the root is not
// registered.
func (t *Tree) RemoveRoot(path string) {
	path = cleanPath(path)
	for i, r := range t.roots {
		if r.Path == path {
			t.roots = append(t.roots[:i], t.roots[i+1:]...)
			t.notify(Event{Kind: EventDirectoryRemoved, Root: r})
			return
		}
	}
}

// NotifyUpdate is an observer-only notification: it does not mutate the
// tree, but informs subscribers that the given path (and, if recursive, its
// descendants) should be treated as possibly stale.
func (t *Tree) NotifyUpdate(file string, recursive bool) {
	t.notify(Event{Kind: EventNotifyUpdate, Root: &model.Root{Path: file}, Recursive: recursive})
}

// Roots returns the currently registered roots, in path order. The returned
// slice must not be mutated by the caller.
func (t *Tree) Roots() []*model.Root {
	return t.roots
}

// GetRoot returns the nearest enclosing root for file, and its flags, if
// any root contains it.
func (t *Tree) GetRoot(file string) (*model.Root, bool) {
	file = cleanPath(file)
	var best *model.Root
	for _, r := range t.roots {
		if r.Contains(file) {
			if best == nil || len(r.Path) > len(best.Path) {
				best = r
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// IsRoot reports whether file is itself a registered root path.
func (t *Tree) IsRoot(file string) bool {
	file = cleanPath(file)
	for _, r := range t.roots {
		if r.Path == file {
			return true
		}
	}
	return false
}

// IsIndexable reports whether file passes every registered file filter and
// the tree's hidden-file policy, given that it lies under a root.
func (t *Tree) IsIndexable(file string, info model.FileInfo) bool {
	if info.Hidden && !t.hiddenFilesIndexable {
		return false
	}
	for _, f := range t.fileFilters {
		if !f(file, info) {
			return false
		}
	}
	return true
}

// ParentIsIndexable applies the registered content filters to a directory's
// assembled child list. All filters must pass (AND semantics); a false
// result from any filter prunes the whole directory.
func (t *Tree) ParentIsIndexable(parent string, children []model.FileInfo) bool {
	for _, f := range t.contentFilters {
		if !f(parent, children) {
			return false
		}
	}
	return true
}

// MatchesFilterKind applies the tree's filters for the given entry kind. It
// simply dispatches to IsIndexable or ParentIsIndexable depending on kind,
// per the spec's matches_filter(kind, file) signature; File and Directory
// both use the per-file filters, ParentDir uses content filters with an
// empty, already-known-good child list (used when testing a single
// directory in isolation, e.g. before it has any children enumerated).
type FilterKind uint8

const (
	FilterFile FilterKind = iota
	FilterDirectory
	FilterParentDir
)

func (t *Tree) MatchesFilterKind(kind FilterKind, file string, info model.FileInfo) bool {
	switch kind {
	case FilterFile, FilterDirectory:
		return t.IsIndexable(file, info)
	case FilterParentDir:
		return t.ParentIsIndexable(file, nil)
	default:
		return false
	}
}

func (t *Tree) get_root_exact_or_ancestor(path string) *model.Root {
	for _, r := range t.roots {
		if r.Path == path || r.Contains(path) {
			return r
		}
	}
	return nil
}

func cleanPath(p string) string {
	if p == "" {
		return p
	}
	// Strip trailing separators (but not the root "/" itself).
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}
