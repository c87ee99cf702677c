package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/gateway"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices connected to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			if err := validateFormat(format); err != nil {
				return err
			}

			_, _, client, err := setup(cmd)
			if err != nil {
				return err
			}

			nodes, err := client.ConnectedDevices(cmd.Context())
			if err != nil {
				return err
			}

			if format == formatJSON {
				if nodes == nil {
					nodes = []gateway.ConnectedNode{}
				}
				return writeJSON(cmd.OutOrStdout(), nodes)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderConnectedTable(nodes))
			return err
		},
	}
	cmd.Flags().StringP("format", "f", formatTable, "Output format (table, json)")
	return cmd
}
