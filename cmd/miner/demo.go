package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackerminers/filesystem-miner/cmd/miner/cmdutil"
	"github.com/trackerminers/filesystem-miner/internal/api/nullhost"
	"github.com/trackerminers/filesystem-miner/internal/crawler"
	"github.com/trackerminers/filesystem-miner/internal/eventqueue"
	"github.com/trackerminers/filesystem-miner/internal/indexing"
	"github.com/trackerminers/filesystem-miner/internal/miner"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/monitor"
	"github.com/trackerminers/filesystem-miner/internal/notifier"
	"github.com/trackerminers/filesystem-miner/internal/provider"
	"github.com/trackerminers/filesystem-miner/internal/sparqlbuffer"
	"github.com/trackerminers/filesystem-miner/internal/store/memstore"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

var demoConfiguration struct {
	duration time.Duration
}

// demoMain builds a small throwaway directory tree, runs the full
// crawl/notify/dispatch pipeline against an in-memory store and a
// logging-only extraction host, and prints what ended up indexed. It
// exercises the same wiring as indexMain without requiring a
// configuration file or a real store server.
func demoMain(command *cobra.Command, arguments []string) error {
	root, err := os.MkdirTemp("", "miner-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)

	if err := seedDemoTree(root); err != nil {
		return err
	}

	logger := logging.RootLogger.Sublogger("demo")
	store := memstore.New()

	tree := indexing.New()
	treeRoot, err := tree.AddRoot(root, model.FlagRecurse|model.FlagCheckMtime)
	if err != nil {
		return err
	}

	dataProvider := provider.New()
	check := func(kind crawler.CheckKind, file string, info model.FileInfo, children []model.FileInfo) bool {
		switch kind {
		case crawler.CheckContent:
			return tree.ParentIsIndexable(file, children)
		default:
			return tree.IsIndexable(file, info)
		}
	}
	cr := crawler.New(dataProvider, check)

	queue := eventqueue.New()

	mon, err := monitor.New(logger.Sublogger("monitor"), func(ev monitor.Event) {})
	if err != nil {
		return err
	}
	defer mon.Close()

	nf := notifier.New(tree, dataProvider, cr, store, mon, func(mimetype string) string {
		return "nullhost-v1"
	}, logger.Sublogger("notifier"), queue.Enqueue)

	buffer := sparqlbuffer.New(store, 1000)
	host := nullhost.New(store, logger.Sublogger("host"), nil)
	m := miner.New(tree, queue, buffer, host, logger.Sublogger("dispatch"), 1.0)

	ctx, cancel := context.WithTimeout(context.Background(), demoConfiguration.duration)
	defer cancel()

	nf.StartRoot(ctx, treeRoot)
	m.Run(ctx)

	rows := store.Snapshot()

	cmdutil.Info(fmt.Sprintf("indexed %d resources under %s", len(rows), root))
	for _, row := range rows {
		fmt.Printf("  %s (dir=%v, mimetype=%s)\n", row.URI, row.IsDir, row.Mimetype)
	}
	return nil
}

func seedDemoTree(root string) error {
	dirs := []string{"docs", "docs/nested", "media"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}

	files := map[string]string{
		"README.md":         "# demo\n",
		"docs/notes.txt":    "hello world\n",
		"docs/nested/a.txt": "nested content\n",
		"media/picture.jpg": "\xff\xd8\xff\xe0fake-jpeg-bytes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

var demoCommand = &cobra.Command{
	Use:   "demo",
	Short: "Run an end-to-end indexing demo against a throwaway directory tree",
	Run:   cmdutil.Mainify(demoMain),
}

func init() {
	flags := demoCommand.Flags()
	flags.DurationVar(&demoConfiguration.duration, "duration", 2*time.Second, "How long to let the pipeline run before reporting results")
}
