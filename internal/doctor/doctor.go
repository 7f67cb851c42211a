// Package doctor runs readiness diagnostics for config, the gaze server, and
// the local environment.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rbright/sightline/internal/config"
	"github.com/rbright/sightline/internal/ipc"
	"github.com/rbright/sightline/internal/transport"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

var (
	okLabel   = color.New(color.FgGreen, color.Bold)
	failLabel = color.New(color.FgRed, color.Bold)
)

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := okLabel.Sprint("OK")
		if !check.Pass {
			status = failLabel.Sprint("FAIL")
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// probes are the live checks Run performs; tests replace them.
type probes struct {
	dial  func(context.Context, transport.Options) (*transport.Conn, error)
	sink  func() (string, error)
	owner func(context.Context, string, time.Duration) (bool, error)
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, sink func() (string, error)) Report {
	return run(ctx, cfg, probes{dial: transport.Dial, sink: sink, owner: ipc.Probe})
}

func run(ctx context.Context, cfg config.Loaded, p probes) Report {
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		configMessage = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the control socket", "XDG_RUNTIME_DIR is empty"))

	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		checks = append(checks, checkOwner(ctx, socketPath, p.owner))
	}

	checks = append(checks, checkServer(ctx, cfg.Config.Server, p.dial))

	if cfg.Config.Indicator.Enable && strings.EqualFold(strings.TrimSpace(cfg.Config.Indicator.Backend), "desktop") {
		checks = append(checks, checkBinary("busctl", "desktop indicator requires busctl"))
	}
	if cfg.Config.Indicator.SoundEnable && p.sink != nil {
		checks = append(checks, checkSound(p.sink))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkOwner reports whether another sightline process owns the socket. Both
// answers pass; only an inconclusive probe fails.
func checkOwner(ctx context.Context, path string, owner func(context.Context, string, time.Duration) (bool, error)) Check {
	alive, err := owner(ctx, path, 200*time.Millisecond)
	switch {
	case err != nil:
		return Check{Name: "ipc.socket", Pass: false, Message: err.Error()}
	case alive:
		return Check{Name: "ipc.socket", Pass: true, Message: fmt.Sprintf("session running at %s", path)}
	default:
		return Check{Name: "ipc.socket", Pass: true, Message: fmt.Sprintf("no session running (%s)", path)}
	}
}

// checkServer opens and closes one connection to the gaze server without
// sending a command.
func checkServer(
	ctx context.Context,
	server config.ServerConfig,
	dial func(context.Context, transport.Options) (*transport.Conn, error),
) Check {
	timeout := min(server.DialTimeout(), 2*time.Second)
	conn, err := dial(ctx, transport.Options{Address: server.Address, DialTimeout: timeout})
	if err != nil {
		message := fmt.Sprintf("connect %s failed: %v", server.Address, err)
		if transport.IsConnectionRefused(err) {
			message = fmt.Sprintf("nothing listening on %s; start the gaze server", server.Address)
		}
		return Check{Name: "server", Pass: false, Message: message}
	}
	_ = conn.Close()
	return Check{Name: "server", Pass: true, Message: fmt.Sprintf("reachable at %s", conn.Address())}
}

// checkSound confirms the sound server accepts clients for audio cues.
func checkSound(sink func() (string, error)) Check {
	name, err := sink()
	if err != nil {
		return Check{Name: "audio.sink", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.sink", Pass: true, Message: fmt.Sprintf("cues play on %q", name)}
}
