package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ffs/internal/config"
	"github.com/steveyegge/ffs/internal/logging"
	"github.com/steveyegge/ffs/internal/pipeline"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ffs <path>",
	Short: "Watch a directory tree and dispatch every change",
	Long: `Watch a directory tree recursively and process every filesystem change.

Each change is logged (Created, Modified, Removed, Rename) and then handed to
one task per affected path. At most --max-parallel changes are processed at a
time; a burst larger than --queue-capacity slows the watcher down instead of
losing events.

Configuration is read from --config, or ffs.yaml / ffs.toml in the working
directory or in ~/.config/ffs. FFS_* environment variables override the file
(FFS_DISPATCH_MAX_PARALLEL=8) and flags override both.

Examples:
  # Watch the current directory
  ffs .

  # Verbose output with a live dashboard
  ffs --log-level debug --dashboard 127.0.0.1:8080 ~/src
`,
	Args:          cobra.ExactArgs(1),
	RunE:          runWatch,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./ffs.yaml or ~/.config/ffs/ffs.yaml)")
	flags.Int("queue-capacity", 100, "Events buffered between the watcher and the dispatcher")
	flags.Int("max-parallel", 0, "Changes processed at once (default number of CPUs)")
	flags.String("backend", "fsnotify", "Watch backend: fsnotify or notify")
	flags.Duration("rename-window", 0, "How long a rename waits for its new name (default 50ms)")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this file, rotated")
	flags.String("dashboard", "", "Serve the live dashboard on this address")

	rootCmd.AddGroup(&cobra.Group{ID: "tools", Title: "Tools:"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the effective configuration and initializes the process logger.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Init(cfg.Log.Logging())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Usage is only useful for argument errors.
	cmd.SilenceUsage = true

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return pipeline.Watch(ctx, pipeline.Config{
		Root:     args[0],
		Settings: cfg,
		Logger:   logger,
	})
}
