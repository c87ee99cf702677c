package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/notify"
	"golang.org/x/term"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Print notifications and indications from connected devices",
		Long: `Subscribe to the gateway notification stream and print every notification or indication,
one per line. Devices must already be connected with notifications enabled (see "connect").`,
		Args: cobra.NoArgs,
		RunE: runNotify,
	}

	cmd.Flags().DurationP("duration", "d", 0, "Listen duration (0 for indefinite)")
	cmd.Flags().Bool("raw", false, "Print payloads verbatim")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	return cmd
}

func runNotify(cmd *cobra.Command, _ []string) error {
	cfg, logger, client, err := setup(cmd)
	if err != nil {
		return err
	}

	listener, err := notify.NewListener(client, cfg.Notify.BufferSize, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration, _ := cmd.Flags().GetDuration("duration"); duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	raw, _ := cmd.Flags().GetBool("raw")
	noColor, _ := cmd.Flags().GetBool("no-color")
	printer := newNotificationPrinter(cmd.OutOrStdout(), raw, !noColor && isTerminal(cmd.OutOrStdout()))

	runErr := make(chan error, 1)
	go func() { runErr <- listener.Run(ctx) }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			if _, derr := listener.Drain(printer.Print); derr != nil {
				return derr
			}
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		case <-ticker.C:
			if _, err := listener.Drain(printer.Print); err != nil {
				return err
			}
		}
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
