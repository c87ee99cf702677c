package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/connq"
	"github.com/srg/blegw/internal/drain"
	"github.com/srg/blegw/internal/gateway"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <address>",
		Short: "Connect a device and enable its notifications",
		Long: `Connect a single device through the gateway, then enable notifications by writing the notify
value to the notify handle, exactly as "run" does for each discovered device.

Use --no-notify to only connect.`,
		Example: `  blegw connect ED:47:B0:D3:A9:C8
  blegw connect C0:00:5B:D1:AA:BC --type random --handle 39`,
		Args: cobra.ExactArgs(1),
		RunE: runConnect,
	}

	cmd.Flags().StringP("type", "t", string(gateway.AddressPublic), "Address type (public, random)")
	cmd.Flags().Duration("timeout", 0, "Gateway-side connect timeout (default from config, 5s)")
	cmd.Flags().Int("handle", 0, "Notify handle (default from config, 17)")
	cmd.Flags().String("value", "", "Hex value written to the notify handle (default from config, 0200)")
	cmd.Flags().Bool("no-notify", false, "Only connect, do not enable notifications")
	cmd.Flags().StringP("format", "f", formatTable, "Output format (table, json)")
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	typeStr, _ := cmd.Flags().GetString("type")
	kind, err := gateway.ParseAddressKind(typeStr)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}

	cfg, logger, client, err := setup(cmd)
	if err != nil {
		return err
	}

	timeout := durationFlag(cmd, "timeout", cfg.Connect.Timeout)
	entry := connq.Entry{DeviceID: args[0], AddressKind: kind}
	out := cmd.OutOrStdout()

	if noNotify, _ := cmd.Flags().GetBool("no-notify"); noNotify {
		body, err := client.Connect(cmd.Context(), entry.DeviceID, kind, timeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, body)
		return nil
	}

	opts := drain.Options{
		ConnectTimeout: timeout,
		NotifyHandle:   cfg.Connect.NotifyHandle,
		NotifyValue:    cfg.Connect.NotifyValue,
	}
	if h, _ := cmd.Flags().GetInt("handle"); h > 0 {
		opts.NotifyHandle = h
	}
	if v, _ := cmd.Flags().GetString("value"); v != "" {
		opts.NotifyValue = v
	}

	res := drain.New(client, nil, opts, logger).Attempt(cmd.Context(), entry)
	summary := summarizeAttempt(res)

	if format == formatJSON {
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	} else {
		rows := [][]string{
			{"Address", summary.Address},
			{"Type", summary.Type},
			{"Stage", summary.Stage},
			{"Handle", strconv.Itoa(opts.NotifyHandle)},
			{"Duration", summary.Duration},
		}
		if summary.Result != "" {
			rows = append(rows, []string{"Result", summary.Result})
		}
		fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	}
	return res.Err
}
