package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <address> <handle>",
		Short: "Read an attribute handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := strconv.Atoi(args[1])
			if err != nil || handle <= 0 {
				return fmt.Errorf("invalid handle %q: must be a positive integer", args[1])
			}
			format, _ := cmd.Flags().GetString("format")

			_, _, client, err := setup(cmd)
			if err != nil {
				return err
			}

			value, err := client.ReadHandle(cmd.Context(), args[0], handle)
			if err != nil {
				return err
			}
			return printValue(cmd, value, format)
		},
	}
	cmd.Flags().StringP("format", "f", "hex", "Output format (hex, text, json)")
	return cmd
}

func printValue(cmd *cobra.Command, value, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "hex":
		_, err := fmt.Fprintln(out, strings.ToLower(value))
		return err
	case "text":
		data, err := hex.DecodeString(value)
		if err != nil {
			return fmt.Errorf("value %q is not hex: %w", value, err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case formatJSON:
		return writeJSON(out, map[string]string{"value": strings.ToLower(value)})
	default:
		return fmt.Errorf("invalid format '%s': must be one of [hex text json]", format)
	}
}
