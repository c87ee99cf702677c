package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blegw/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggerCmd(t *testing.T, level string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	if level != "" {
		require.NoError(t, cmd.Flags().Set("log-level", level))
	}
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	return cmd, &stderr
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		cfgLevel string
		expected logrus.Level
	}{
		{name: "config level", cfgLevel: "warn", expected: logrus.WarnLevel},
		{name: "flag wins over config", flag: "debug", cfgLevel: "error", expected: logrus.DebugLevel},
		{name: "default", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, stderr := newLoggerCmd(t, tt.flag)
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.cfgLevel

			logger, err := configureLogger(cmd, cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)

			logger.Error("written to stderr")
			assert.Contains(t, stderr.String(), "written to stderr")
		})
	}
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	cmd, _ := newLoggerCmd(t, "loud")

	_, err := configureLogger(cmd, config.DefaultConfig())

	assert.ErrorContains(t, err, "invalid log level")
}
