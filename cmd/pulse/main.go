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

const banner = `
  ┌─┐┬ ┬┬  ┌─┐┌─┐
  ├─┘│ ││  └─┐├┤
  ┴  └─┘┴─┘└─┘└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Reactive control surfaces for Go",
		Long: `Pulse hosts reactive control surfaces over WebSocket.

Cells hold values, computations derive from them, and the scheduler
propagates changes glitch-free. Features include:

  • Batched, topologically ordered propagation
  • Bounded re-entrant write-back with cycle detection
  • Dynamic control surfaces with value carry-over
  • Session snapshots for reconnect and restart`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the pulse ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
