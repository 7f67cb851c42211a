package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "address without port", mutate: func(c *Config) { c.Server.Address = "127.0.0.1" }, wantErr: "server.address"},
		{name: "address empty port", mutate: func(c *Config) { c.Server.Address = "127.0.0.1:" }, wantErr: "port"},
		{name: "dial timeout", mutate: func(c *Config) { c.Server.DialTimeoutMS = 0 }, wantErr: "dial_timeout_ms"},
		{name: "send timeout", mutate: func(c *Config) { c.Server.SendTimeoutMS = -1 }, wantErr: "send_timeout_ms"},
		{name: "receive timeout", mutate: func(c *Config) { c.Server.ReceiveTimeoutMS = 0 }, wantErr: "receive_timeout_ms"},
		{name: "x range inverted", mutate: func(c *Config) { c.Calibration.XMin = 10 }, wantErr: "x_min"},
		{name: "y range empty", mutate: func(c *Config) { c.Calibration.YMax = c.Calibration.YMin }, wantErr: "y_min"},
		{name: "non finite bound", mutate: func(c *Config) { c.Calibration.XMax = math.Inf(1) }, wantErr: "finite"},
		{name: "zero passes", mutate: func(c *Config) { c.Calibration.Passes = 0 }, wantErr: "passes"},
		{name: "negative settle", mutate: func(c *Config) { c.Calibration.SettleMS = -5 }, wantErr: "settle_ms"},
		{name: "zero tick rate", mutate: func(c *Config) { c.Tracking.TickHz = 0 }, wantErr: "tick_hz"},
		{name: "empty backend", mutate: func(c *Config) { c.Indicator.Backend = " " }, wantErr: "indicator.backend"},
		{name: "unknown backend", mutate: func(c *Config) { c.Indicator.Backend = "hypr" }, wantErr: "terminal, desktop"},
		{name: "desktop without app name", mutate: func(c *Config) {
			c.Indicator.Backend = "desktop"
			c.Indicator.DesktopAppName = ""
		}, wantErr: "desktop_app_name"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Server.Address = ":5000"
	cfg.Tracking.TickHz = 500

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "no host")
	require.Contains(t, warnings[1].Message, "tick_hz")
}
