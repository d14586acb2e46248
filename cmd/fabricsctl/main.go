// Command fabricsctl is a demo CLI for the fabrics core: listen (run a
// Target), send (run an Initiator against a known Target), and monitor (a
// terminal dashboard over a running instance's Prometheus endpoint).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mxl-media/fabrics/internal/obslog"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "fabricsctl",
		Short: "Drive the fabrics transport core from the command line",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			obslog.Init(level, os.Stderr)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	root.AddCommand(listenCmd(), sendCmd(), monitorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fabricsctl:", err)
		os.Exit(1)
	}
}
