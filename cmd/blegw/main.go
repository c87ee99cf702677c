package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each call returns fresh commands and flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blegw",
		Short: "BLE gateway client",
		Long: `Client for the REST and event-stream API of a BLE gateway:

- Scan for nearby devices through the gateway
- Connect discovered devices one at a time and enable their notifications
- Log notifications and indications from every connected device
- Read and write attribute handles, list and disconnect connected devices

Run "blegw run" to scan, connect and listen continuously.`,
		Version:       formatVersion(version),
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("blegw {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("host", "", "Gateway URL or address (overrides the config file)")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(
		newRunCmd(),
		newScanCmd(),
		newNotifyCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newWriteCmd(),
		newReadCmd(),
		newDevicesCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
