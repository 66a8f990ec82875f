package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reflow",
		Short: "Reactive data runtime for view layers",
		Long: `Reflow turns a plain nested data document into a self-updating
model: reads are tracked, writes notify everything that depended on
them. The CLI serves a model over HTTP/WebSocket and talks to a
running server.

  • reflow serve     run the sync server for a model file
  • reflow get/set   read and write paths on a running server
  • reflow snapshot  save, restore and list model snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		getCmd(),
		setCmd(),
		snapshotCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
