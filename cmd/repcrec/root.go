package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyudb/repcrec/internal/rlog"
)

var (
	// Version information, set via ldflags during build.
	Version = "dev"
	Commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "repcrec",
	Short:   "Replicated concurrency-control and recovery engine",
	Version: Version,
	Long: `repcrec replays a stream of begin/R/W/end/fail/recover/dump
instructions against a simulated 10-site, 20-variable distributed
database: available-copies reads, strict two-phase locking,
snapshot-isolated read-only transactions, and cycle-based deadlock
detection.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("repcrec %s (%s)\n", Version, Commit)
		},
	})
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")

	rlog.Init(rlog.Config{
		Level:      rlog.Level(level),
		JSONOutput: jsonOut,
	})
}
