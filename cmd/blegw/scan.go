package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/scan"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices through the gateway",
		Long: `Subscribe to the gateway scan stream and list the devices it reports.

Nothing is connected. Results are printed when the scan duration elapses or on Ctrl+C;
with --watch the table is redrawn every second.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	cmd.Flags().StringP("format", "f", formatTable, "Output format (table, json)")
	cmd.Flags().BoolP("watch", "w", false, "Continuously scan and redraw results")
	cmd.Flags().Int("rssi", 0, "Minimum RSSI (default from config, -75)")
	cmd.Flags().String("name", "", "Device name filter, glob (default from config, Cassia*)")
	cmd.Flags().Bool("passive", false, "Use passive scanning")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}

	cfg, logger, client, err := setup(cmd)
	if err != nil {
		return err
	}

	filter := gateway.ScanFilter{
		RSSI:   cfg.Scan.FilterRSSI,
		Name:   cfg.Scan.FilterName,
		Active: cfg.Scan.Active,
	}
	if cmd.Flags().Changed("rssi") {
		filter.RSSI, _ = cmd.Flags().GetInt("rssi")
	}
	if cmd.Flags().Changed("name") {
		filter.Name, _ = cmd.Flags().GetString("name")
	}
	if passive, _ := cmd.Flags().GetBool("passive"); passive {
		filter.Active = false
	}

	duration, _ := cmd.Flags().GetDuration("duration")
	watch, _ := cmd.Flags().GetBool("watch")
	if watch && !cmd.Flags().Changed("duration") {
		duration = 0
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	listener := scan.NewListener(client, filter, nil, logger)
	out := cmd.OutOrStdout()

	stopRedraw := func() {}
	if watch {
		stopRedraw = startRedraw(ctx, out, listener.Registry(), time.Second)
	}

	err = listener.Run(ctx)
	stopRedraw()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return printDevices(out, listener.Registry().Snapshot(), format)
}

func printDevices(out io.Writer, records []scan.DeviceRecord, format string) error {
	if format == formatJSON {
		if records == nil {
			records = []scan.DeviceRecord{}
		}
		return writeJSON(out, records)
	}
	_, err := fmt.Fprintln(out, renderDevicesTable(records))
	return err
}

// startRedraw redraws the device table every interval until the returned stop function is called.
// stop returns once the last redraw has been written.
func startRedraw(ctx context.Context, out io.Writer, registry *scan.Registry, every time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		redrawLoop(ctx, out, registry, every)
	}()
	return func() {
		cancel()
		<-done
	}
}

func redrawLoop(ctx context.Context, out io.Writer, registry *scan.Registry, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(out, clearScreen)
			fmt.Fprintln(out, renderDevicesTable(registry.Snapshot()))
		}
	}
}
