package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trackerminers/filesystem-miner/cmd/miner/cmdutil"
	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/archive/extractor"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

var extractConfiguration struct {
	output     string
	passphrase string
	overwrite  bool
	deleteSrc  bool
}

type extractCLIHost struct{}

func (extractCLIHost) RequestPassphrase() string {
	return extractConfiguration.passphrase
}

func (extractCLIHost) DecideDestination(prefixOrDest string, files []string) string {
	cmdutil.Info(fmt.Sprintf("extracting %d entries under %s", len(files), prefixOrDest))
	return ""
}

func (extractCLIHost) Conflict(file string) (extractor.ConflictAction, string) {
	if extractConfiguration.overwrite {
		return extractor.Overwrite, ""
	}
	return extractor.Skip, ""
}

func (extractCLIHost) Progress(completed, total int64) {
	if total > 0 {
		fmt.Printf("\r%d/%d bytes", completed, total)
	}
}

func extractMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return fmt.Errorf("exactly one archive path is required")
	}

	opts := extractor.Options{
		Format:                archive.FormatAll,
		Passphrase:            extractConfiguration.passphrase,
		OutputDir:             extractConfiguration.output,
		SourceArchivePath:     arguments[0],
		DeleteAfterExtraction: extractConfiguration.deleteSrc,
	}

	logger := logging.RootLogger.Sublogger("extract")
	e := extractor.New(opts, extractCLIHost{}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := e.Run(ctx); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

var extractCommand = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Extract an archive, auto-detecting its format",
	Run:   cmdutil.Mainify(extractMain),
}

func init() {
	flags := extractCommand.Flags()
	flags.StringVarP(&extractConfiguration.output, "output", "o", ".", "Directory to extract into")
	flags.StringVar(&extractConfiguration.passphrase, "passphrase", "", "Passphrase for encrypted archives")
	flags.BoolVar(&extractConfiguration.overwrite, "overwrite", true, "Overwrite conflicting files instead of skipping them")
	flags.BoolVar(&extractConfiguration.deleteSrc, "delete-source", false, "Delete the source archive after successful extraction")
}
