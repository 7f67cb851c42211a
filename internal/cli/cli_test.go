package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithFlags(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/sightline.jsonc", "--addr=10.0.0.2:5000", "-v", "calibrate"})
	require.NoError(t, err)
	require.Equal(t, CommandCalibrate, parsed.Command)
	require.Equal(t, "/tmp/sightline.jsonc", parsed.ConfigPath)
	require.Equal(t, "10.0.0.2:5000", parsed.Address)
	require.True(t, parsed.Verbose)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help wins over command", args: []string{"track", "--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/c.jsonc"}, wantCmd: CommandStatus, wantPath: "/tmp/c.jsonc"},
		{name: "each command", args: []string{"trigger"}, wantCmd: CommandTrigger},
		{name: "run command", args: []string{"run"}, wantCmd: CommandRun},
		{name: "missing config value", args: []string{"--config"}, wantErr: "--config"},
		{name: "blank config value", args: []string{"--config", " ", "doctor"}, wantErr: "--config requires a path"},
		{name: "blank addr value", args: []string{"--addr=", "track"}, wantErr: "--addr requires"},
		{name: "unknown flag", args: []string{"--wat"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"toggle"}, wantErr: "unknown command"},
		{name: "extra args", args: []string{"track", "extra"}, wantErr: "unexpected arguments"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestHelpTextListsCommandsAndFlags(t *testing.T) {
	help := HelpText("sightline")
	for _, want := range []string{"sightline [flags] <command>", "calibrate", "track", "trigger", "--config", "--addr", "--verbose"} {
		require.Contains(t, help, want)
	}
}
