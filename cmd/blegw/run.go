package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/app"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, connect and listen for notifications until interrupted",
		Long: `Subscribe to the gateway scan stream and connect every discovered device, one at a time.

Discovered devices are queued once; the most recently discovered device is connected first.
After each successful connection notifications are enabled by writing the notify value to the
configured handle. Notifications from all connected devices are logged. When the queue is empty
the command waits for the drain interval before looking again.

Only one instance may run at a time against a gateway; a lock file enforces it.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().Duration("interval", 0, "Delay between connect passes (default from config, 5s)")
	cmd.Flags().Duration("connect-timeout", 0, "Gateway-side connect timeout (default from config, 5s)")
	cmd.Flags().Int("rssi", 0, "Minimum RSSI for discovered devices (default from config, -75)")
	cmd.Flags().String("name", "", "Device name filter, glob (default from config, Cassia*)")
	cmd.Flags().Bool("passive", false, "Use passive scanning")
	cmd.Flags().String("lock-file", "", "Instance lock file (default from config)")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, client, err := setup(cmd)
	if err != nil {
		return err
	}

	cfg.Drain.Interval = durationFlag(cmd, "interval", cfg.Drain.Interval)
	cfg.Connect.Timeout = durationFlag(cmd, "connect-timeout", cfg.Connect.Timeout)
	if cmd.Flags().Changed("rssi") {
		cfg.Scan.FilterRSSI, _ = cmd.Flags().GetInt("rssi")
	}
	if cmd.Flags().Changed("name") {
		cfg.Scan.FilterName, _ = cmd.Flags().GetString("name")
	}
	if passive, _ := cmd.Flags().GetBool("passive"); passive {
		cfg.Scan.Active = false
	}
	if lockFile, _ := cmd.Flags().GetString("lock-file"); lockFile != "" {
		cfg.LockFile = lockFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lock, err := app.AcquireLock(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.WithError(err).Warn("Failed to release instance lock")
		}
	}()

	runner, err := app.New(cfg, client, logger, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"gateway":  client.BaseURL(),
		"interval": cfg.Drain.Interval,
		"lock":     cfg.LockFile,
	}).Info("Starting gateway client")

	return runner.Run(ctx)
}
