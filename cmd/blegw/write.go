package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <address> <handle> <hex-value>",
		Short: "Write a hex value to an attribute handle",
		Example: `  # enable notifications on handle 17
  blegw write ED:47:B0:D3:A9:C8 17 0200`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := strconv.Atoi(args[1])
			if err != nil || handle <= 0 {
				return fmt.Errorf("invalid handle %q: must be a positive integer", args[1])
			}

			_, _, client, err := setup(cmd)
			if err != nil {
				return err
			}

			body, err := client.WriteHandle(cmd.Context(), args[0], handle, args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
}
