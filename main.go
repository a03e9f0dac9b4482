package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/charmbracelet/log"

	"github.com/seleria/xivpatch/internal"
)

// Define command structs
type CheckCmd struct {
	Root string `arg:"positional,required" help:"Game installation root directory"`
}

type UpdateCmd struct {
	Root       string `arg:"positional,required" help:"Game installation root directory"`
	PatchDir   string `arg:"--patch-dir" help:"Directory for downloaded patch files (default: <root>/patches)"`
	SpeedLimit int64  `arg:"--speed-limit" help:"Download bandwidth cap in bytes per second (0 = unlimited)"`
	Yes        bool   `arg:"-y,--yes" help:"Apply the update without asking"`
}

// Root command struct
type Args struct {
	Check  *CheckCmd  `arg:"subcommand:check" help:"Check whether the installation needs patching"`
	Update *UpdateCmd `arg:"subcommand:update" help:"Download and apply required patches"`
	Debug  bool       `arg:"--debug" help:"Enable debug logging"`
}

func main() {
	var args Args
	arg.MustParse(&args)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if args.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	installLogHandler(logger, args.Debug)

	switch {
	case args.Check != nil:
		os.Exit(runCheck(args.Check))

	case args.Update != nil:
		os.Exit(runUpdate(args.Update))

	default:
		fmt.Println("No command specified")
		os.Exit(1)
	}
}

// installLogHandler routes the library's log delegate into the CLI logger.
func installLogHandler(logger *log.Logger, debug bool) {
	internal.LogHandler = func(sender interface{}, entry internal.LogStruct) {
		switch entry.LogLevel {
		case internal.Debug:
			logger.Debug(entry.Message)
		case internal.Warning:
			logger.Warn(entry.Message)
		case internal.Error:
			logger.Error(entry.Message)
		default:
			logger.Info(entry.Message)
		}
	}
}
