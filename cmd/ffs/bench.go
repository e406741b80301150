package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ffs/internal/loadtest"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Flood the dispatcher with synthetic changes and report latency",
	Long: `Send synthetic change notifications through the real queue, limiter,
dispatcher and processor, then report throughput, latency percentiles and
the peak number of permits in use.

--queue-capacity and --max-parallel apply as they do when watching.

Examples:
  # 10000 notifications, 4 paths each, 2ms of simulated work per path
  ffs bench --notifications 10000 --paths 4 --latency 2ms

  # Output results as JSON
  ffs bench --json
`,
	Args:    cobra.NoArgs,
	RunE:    runBench,
	GroupID: "tools",
}

func init() {
	benchCmd.Flags().Int("notifications", 1000, "Number of notifications to send")
	benchCmd.Flags().Int("paths", 1, "Paths per notification")
	benchCmd.Flags().Duration("latency", 0, "Simulated work per path")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	notifications, _ := cmd.Flags().GetInt("notifications")
	paths, _ := cmd.Flags().GetInt("paths")
	latency, _ := cmd.Flags().GetDuration("latency")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if notifications <= 0 {
		return fmt.Errorf("--notifications must be positive")
	}
	if paths <= 0 {
		return fmt.Errorf("--paths must be positive")
	}
	if latency < 0 {
		return fmt.Errorf("--latency cannot be negative")
	}
	cmd.SilenceUsage = true

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debugf("Running load test: %d notifications, %d paths each", notifications, paths)
	result, err := loadtest.Run(ctx, loadtest.Options{
		Notifications:        notifications,
		PathsPerNotification: paths,
		Latency:              latency,
		QueueCapacity:        cfg.Queue.Capacity,
		MaxParallel:          cfg.Dispatch.MaxParallel,
	})
	if result == nil {
		return err
	}

	if jsonOutput {
		data, jsonErr := json.MarshalIndent(result, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("failed to marshal results: %w", jsonErr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		result.Print(cmd.OutOrStdout())
	}
	return err
}
