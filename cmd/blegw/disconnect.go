package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <address>...",
		Short: "Disconnect devices from the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, client, err := setup(cmd)
			if err != nil {
				return err
			}

			var failed int
			for _, addr := range args {
				if _, err := client.Disconnect(cmd.Context(), addr); err != nil {
					logger.WithError(err).WithField("address", addr).Error("Disconnect failed")
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", addr, FormatUserError(err))
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s disconnected\n", addr)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d devices failed to disconnect", failed, len(args))
			}
			return nil
		},
	}
}
