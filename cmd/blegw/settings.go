package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/pkg/config"
)

// loadConfig reads --config and applies the persistent flag overrides on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup is the common preamble of every command: config, logger and gateway client.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, *gateway.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := newGatewayClient(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	return cfg, logger, client, nil
}

func newGatewayClient(cfg *config.Config, logger *logrus.Logger) (*gateway.Client, error) {
	var opts []gateway.Option
	if cfg.Gateway.RequestTimeout > 0 {
		opts = append(opts, gateway.WithRequestTimeout(cfg.Gateway.RequestTimeout))
	}
	return gateway.NewClient(cfg.Gateway.Host, logger, opts...)
}

// durationFlag returns the flag value when it was set explicitly, otherwise fallback.
func durationFlag(cmd *cobra.Command, name string, fallback time.Duration) time.Duration {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	d, _ := cmd.Flags().GetDuration(name)
	return d
}
