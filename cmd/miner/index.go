package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trackerminers/filesystem-miner/cmd/miner/cmdutil"
	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/api/nullhost"
	"github.com/trackerminers/filesystem-miner/internal/config"
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
	"github.com/trackerminers/filesystem-miner/internal/store/rpcstore"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

var indexConfiguration struct {
	configPath string
}

func indexMain(command *cobra.Command, arguments []string) error {
	cfg, err := config.Load(indexConfiguration.configPath)
	if err != nil {
		return err
	}

	logger := logging.RootLogger.Sublogger("miner")

	store, storeCleanup, err := dialStore(cfg.Miner.StoreAddress, logger)
	if err != nil {
		return err
	}
	defer storeCleanup()

	tree := indexing.New()
	var roots []*model.Root
	for _, rc := range cfg.Roots {
		root, err := tree.AddRoot(rc.Path, rc.Flags())
		if err != nil {
			return err
		}
		roots = append(roots, root)
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

	var mon *monitor.Monitor
	var nf *notifier.Notifier
	mon, err = monitor.New(logger.Sublogger("monitor"), func(ev monitor.Event) {
		nf.HandleMonitorEvent(ev)
	})
	if err != nil {
		return err
	}
	defer mon.Close()

	nf = notifier.New(tree, dataProvider, cr, store, mon, func(mimetype string) string {
		return "nullhost-v1"
	}, logger.Sublogger("notifier"), queue.Enqueue)

	buffer := sparqlbuffer.New(store, cfg.Miner.ReadyLimit)
	host := nullhost.New(store, logger.Sublogger("host"), nil)
	m := miner.New(tree, queue, buffer, host, logger.Sublogger("dispatch"), cfg.Miner.Throttle)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, root := range roots {
		if root.Flags.Has(model.FlagMonitor) {
			if err := mon.Watch(root.Path); err != nil {
				cmdutil.Warning("unable to watch " + root.Path + ": " + err.Error())
			}
		}
		nf.StartRoot(ctx, root)
	}

	cmdutil.Info("indexing started; press Ctrl+C to stop")
	m.Run(ctx)
	return nil
}

// dialStore returns a memstore.Store if address is empty, or an
// rpcstore.Client dialed against address otherwise. The returned cleanup
// function must always be called.
func dialStore(address string, logger *logging.Logger) (api.StoreClient, func(), error) {
	if address == "" {
		return memstore.New(), func() {}, nil
	}

	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, nil, err
	}
	client := rpcstore.NewClient(conn, logger.Sublogger("store"))
	return client, func() { client.Close() }, nil
}

var indexCommand = &cobra.Command{
	Use:   "index",
	Short: "Start indexing the roots configured in the miner configuration file",
	Run:   cmdutil.Mainify(indexMain),
}

func init() {
	flags := indexCommand.Flags()
	flags.StringVarP(&indexConfiguration.configPath, "config", "c", "miner.yaml", "Path to the miner configuration file")
}
