// Package cli parses sightline command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandCalibrate Command = "calibrate"
	CommandTrack     Command = "track"
	CommandRun       Command = "run"
	CommandTrigger   Command = "trigger"
	CommandStatus    Command = "status"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandCalibrate: {},
	CommandTrack:     {},
	CommandRun:       {},
	CommandTrigger:   {},
	CommandStatus:    {},
	CommandDoctor:    {},
	CommandVersion:   {},
	CommandHelp:      {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Address    string
	Verbose    bool
	ShowHelp   bool
}

type flagValues struct {
	configPath string
	address    string
	verbose    bool
	help       bool
	version    bool
}

func newFlagSet(values *flagValues) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("sightline", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&values.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/sightline/config.jsonc)")
	flagSet.StringVar(&values.address, "addr", "", "gaze server HOST:PORT, overrides server.address")
	flagSet.BoolVarP(&values.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVarP(&values.help, "help", "h", false, "show help")
	flagSet.BoolVar(&values.version, "version", false, "show version")
	return flagSet
}

func Parse(args []string) (Parsed, error) {
	var values flagValues
	flagSet := newFlagSet(&values)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Parsed{Command: CommandHelp, ShowHelp: true}, nil
		}
		return Parsed{}, err
	}
	if flagSet.Changed("config") && strings.TrimSpace(values.configPath) == "" {
		return Parsed{}, errors.New("--config requires a path")
	}
	if flagSet.Changed("addr") && strings.TrimSpace(values.address) == "" {
		return Parsed{}, errors.New("--addr requires HOST:PORT")
	}

	parsed := Parsed{
		Command:    CommandHelp,
		ConfigPath: values.configPath,
		Address:    values.address,
		Verbose:    values.verbose,
		ShowHelp:   true,
	}

	rest := flagSet.Args()
	if len(rest) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}
	if len(rest) == 1 {
		cmd := Command(rest[0])
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
		}
		parsed.Command = cmd
		parsed.ShowHelp = cmd == CommandHelp
	}

	switch {
	case values.help:
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	case values.version:
		parsed.Command = CommandVersion
		parsed.ShowHelp = false
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	var values flagValues
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  calibrate  Run the marker calibration procedure
  track      Stream gaze targets to stdout until interrupted
  run        Calibrate, then track once calibrated
  trigger    Confirm the highlighted calibration marker
  status     Print current state
  doctor     Run configuration and environment checks
  version    Print version information
  help       Show this help

Flags:
%[2]s`, binaryName, newFlagSet(&values).FlagUsages())
}
