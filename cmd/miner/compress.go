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
	"github.com/trackerminers/filesystem-miner/internal/archive/compressor"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
)

var compressConfiguration struct {
	format       string
	output       string
	outputIsDest bool
	topLevelDir  bool
	passphrase   string
}

type compressCLIHost struct{}

func (compressCLIHost) DecideDestination(destination string) {
	cmdutil.Info("writing archive to " + destination)
}

func (compressCLIHost) Progress(completed, total int64) {
	if total > 0 {
		fmt.Printf("\r%d/%d bytes", completed, total)
	}
}

func compressMain(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 {
		return fmt.Errorf("at least one source path is required")
	}

	format, filter, err := parseFormat(compressConfiguration.format)
	if err != nil {
		return err
	}

	opts := compressor.Options{
		Format:                  format,
		Filter:                  filter,
		Passphrase:              compressConfiguration.passphrase,
		Sources:                 arguments,
		OutputIsDest:            compressConfiguration.outputIsDest,
		OutputPath:              compressConfiguration.output,
		CreateTopLevelDirectory: compressConfiguration.topLevelDir,
	}

	logger := logging.RootLogger.Sublogger("compress")
	c := compressor.New(opts, compressCLIHost{}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

func parseFormat(name string) (archive.Format, archive.Filter, error) {
	switch name {
	case "tar":
		return archive.FormatTar, archive.FilterNone, nil
	case "tar.gz", "tgz":
		return archive.FormatTar, archive.FilterGzip, nil
	case "zip":
		return archive.FormatZip, archive.FilterNone, nil
	case "ar":
		return archive.FormatAr, archive.FilterNone, nil
	case "ar-bsd":
		return archive.FormatArBSD, archive.FilterNone, nil
	case "ar-gnu":
		return archive.FormatArGNU, archive.FilterNone, nil
	default:
		return 0, 0, fmt.Errorf("unrecognized archive format %q", name)
	}
}

var compressCommand = &cobra.Command{
	Use:   "compress <source>...",
	Short: "Compress one or more files or directories into an archive",
	Run:   cmdutil.Mainify(compressMain),
}

func init() {
	flags := compressCommand.Flags()
	flags.StringVarP(&compressConfiguration.format, "format", "f", "tar.gz", "Archive format: tar, tar.gz, zip, ar, ar-bsd, ar-gnu")
	flags.StringVarP(&compressConfiguration.output, "output", "o", "", "Output path (a directory unless --output-is-dest is set)")
	flags.BoolVar(&compressConfiguration.outputIsDest, "output-is-dest", false, "Treat --output as the literal archive path")
	flags.BoolVar(&compressConfiguration.topLevelDir, "top-level-dir", true, "Wrap multiple sources in a single top-level directory")
	flags.StringVar(&compressConfiguration.passphrase, "passphrase", "", "Passphrase for formats that support encryption")
}
