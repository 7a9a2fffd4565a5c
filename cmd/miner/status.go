package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackerminers/filesystem-miner/cmd/miner/cmdutil"
	"github.com/trackerminers/filesystem-miner/internal/store/rpcstore"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

var statusConfiguration struct {
	address  string
	timeout  time.Duration
	priority []string
}

func statusMain(command *cobra.Command, arguments []string) error {
	conn, err := net.DialTimeout("tcp", statusConfiguration.address, statusConfiguration.timeout)
	if err != nil {
		return err
	}

	client := rpcstore.NewClient(conn, logging.RootLogger.Sublogger("status"))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), statusConfiguration.timeout)
	defer cancel()

	count, err := client.CountPending(ctx, statusConfiguration.priority)
	if err != nil {
		return err
	}

	fmt.Printf("%d resources pending extraction\n", count)
	return nil
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Query the number of resources pending extraction metadata",
	Run:   cmdutil.Mainify(statusMain),
}

func init() {
	flags := statusCommand.Flags()
	flags.StringVarP(&statusConfiguration.address, "address", "a", "localhost:7717", "Address of the running store server")
	flags.DurationVar(&statusConfiguration.timeout, "timeout", 5*time.Second, "Timeout for the status query")
	flags.StringSliceVar(&statusConfiguration.priority, "priority", nil, "Priority graphs to order first")
}
