package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blegw/pkg/config"
)

// configureLogger creates the command logger. --log-level takes precedence over the config file.
// Log lines go to the command's error stream so command output stays clean.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		cfg.LogLevel = flag
	}
	if _, err := config.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
