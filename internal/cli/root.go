// Package cli provides the command-line interface for gridsync.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var (
	jsonOutput  bool
	datasetName string
	actorName   string
	configPath  string
	dataDirFlag string
	quiet       bool
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gridsync",
	Short: "A document grid kept in sync with JIRA",
	Long: `gridsync keeps spreadsheet-like datasets whose rows mirror JIRA issues.

Features:
  - Grid filters: structured filters and a small expression language
  - Cell edits reconciled with the live issue before they are written back
  - Key columns enforced transactionally
  - Dual storage: JSONL source of truth + SQLite cache for queries
  - Full audit trail of every edit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr()))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&datasetName, "dataset", "", "Target dataset (default: auto-detect or $GRIDSYNC_DATASET)")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", "", "Acting user for audit entries (default: $GRIDSYNC_ACTOR or $USER)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: gridsync.yaml in the data dir or ~/.config/gridsync)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default: nearest .gridsync)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug output")
}

// newLogger returns a logger writing to w at the level selected by
// --verbose and --quiet.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ExitCode is used to communicate exit codes for testing
var ExitCode int

// ExitFunc is the function called to exit the program
// Can be overridden for testing
var ExitFunc = os.Exit

// Exit sets the exit code and calls the exit function
func Exit(code int) {
	ExitCode = code
	ExitFunc(code)
}

// GetJSONOutput returns whether JSON output is enabled
func GetJSONOutput() bool {
	return jsonOutput
}

// IsQuiet returns whether quiet mode is enabled
func IsQuiet() bool {
	return quiet
}
