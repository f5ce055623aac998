package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/gridsync/internal/daemon"
)

var watchTail int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the query cache in sync with the data directory",
	Long: `Run in the foreground, rebuilding a dataset's cache whenever its
records.jsonl changes and reloading its configuration whenever config.json
changes. Stops on Ctrl-C or SIGTERM.

When log.file is configured the process logs there with size-based
rotation; --tail N prints the last N lines of that log and exits.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchTail, "tail", 0, "Print the last N log lines and exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		exitOnError(err)
		return nil
	}
	cfg, dataDir := a.cfg, a.ws.DataDir
	// The process opens its own store.
	a.Close()

	out := cmd.OutOrStdout()
	if watchTail > 0 {
		if cfg.Log.File == "" {
			exitOnError(fmt.Errorf("%w: no log.file configured", ErrUsage))
			return nil
		}
		lines, err := daemon.TailLog(cfg.Log.File, watchTail)
		if err != nil {
			return fmt.Errorf("failed to read log: %w", err)
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	if !IsQuiet() {
		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", dataDir)
	}
	proc := daemon.NewProcess(dataDir, daemon.Options{
		LogFile:    cfg.Log.File,
		LogLevel:   cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Debounce:   cfg.Watch.Debounce,
		Logger:     a.logger,
	})
	return proc.Run(cmd.Context())
}
