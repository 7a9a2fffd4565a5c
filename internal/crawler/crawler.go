// Package crawler implements the Crawler (C4): a single, non-recursive
// directory walk through a pluggable api.DataProvider, applying caller
// callbacks to admit or reject files, directories, and whole directory
// contents. Descent into child directories is the caller's (the Notifier's)
// responsibility; the crawler only ever looks at one directory per call.
package crawler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/contextutil"
)

// CheckKind identifies which admission check a Checker is being asked to
// perform.
type CheckKind uint8

const (
	CheckFile CheckKind = iota
	CheckDirectory
	CheckContent
)

// Checker is the single admission callback set once per Crawler. For
// CheckFile/CheckDirectory it is asked about one entry; for CheckContent it
// is asked about a directory's already-assembled child list (via the
// children parameter) and a false result prunes the whole directory.
type Checker func(kind CheckKind, file string, info model.FileInfo, children []model.FileInfo) bool

const (
	// batchSize bounds the number of items processed per scheduling slice,
	// per spec §4.5's "per-batch upper bound (e.g., 64)".
	batchSize = 64
)

// Crawler performs non-recursive directory walks via a DataProvider.
type Crawler struct {
	provider api.DataProvider
	check    Checker
}

// New creates a Crawler backed by the given provider and admission
// callback.
func New(provider api.DataProvider, check Checker) *Crawler {
	return &Crawler{provider: provider, check: check}
}

// Get walks dir non-recursively, returning the resulting tree node (whose
// Children are the admitted direct entries) and accumulated stats. On
// cancellation, no partial tree is returned.
func (c *Crawler) Get(ctx context.Context, dir string, dirInfo model.FileInfo, flags model.RootFlags) (*model.TreeNode, error) {
	enum, err := c.provider.Begin(ctx, dir, flags, model.PriorityNormal)
	if err != nil {
		return nil, fmt.Errorf("unable to begin enumeration of %q: %w", dir, err)
	}
	defer enum.Close()

	var (
		all   []model.FileInfo
		stats model.CrawlStats
	)
	for {
		if contextutil.IsCancelled(ctx) {
			return nil, ctx.Err()
		}

		batch, err := enum.NextBatch(ctx, batchSize)
		if err != nil {
			return nil, fmt.Errorf("unable to enumerate %q: %w", dir, err)
		}
		all = append(all, batch...)
		if len(batch) < batchSize {
			break
		}
	}

	// Run the content filter, if any, over the whole assembled list before
	// admitting any individual child (spec §4.5).
	if c.check != nil && !c.check(CheckContent, dir, dirInfo, all) {
		stats.DirsIgnored++
		return &model.TreeNode{Path: dir, Info: dirInfo, Stats: stats}, nil
	}

	node := &model.TreeNode{Path: dir, Info: dirInfo}
	for _, info := range all {
		if contextutil.IsCancelled(ctx) {
			return nil, ctx.Err()
		}

		childPath := filepath.Join(dir, info.Name)
		if info.IsDir() {
			if c.check != nil && !c.check(CheckDirectory, childPath, info, nil) {
				stats.DirsIgnored++
				continue
			}
			stats.DirsFound++
		} else {
			if c.check != nil && !c.check(CheckFile, childPath, info, nil) {
				stats.FilesIgnored++
				continue
			}
			stats.FilesFound++
		}
		node.Children = append(node.Children, &model.TreeNode{Path: childPath, Info: info})
	}

	node.Stats = stats
	return node, nil
}
