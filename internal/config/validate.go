package config

import (
	"fmt"
	"math"
	"net"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	host, port, err := net.SplitHostPort(strings.TrimSpace(cfg.Server.Address))
	if err != nil {
		return nil, fmt.Errorf("server.address must be host:port: %w", err)
	}
	if port == "" {
		return nil, fmt.Errorf("server.address must include a port")
	}
	if host == "" {
		warnings = append(warnings, Warning{Message: "server.address has no host; dialing the local system"})
	}
	if cfg.Server.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("server.dial_timeout_ms must be > 0")
	}
	if cfg.Server.SendTimeoutMS <= 0 {
		return nil, fmt.Errorf("server.send_timeout_ms must be > 0")
	}
	if cfg.Server.ReceiveTimeoutMS <= 0 {
		return nil, fmt.Errorf("server.receive_timeout_ms must be > 0")
	}

	c := cfg.Calibration
	for name, v := range map[string]float64{"x_min": c.XMin, "x_max": c.XMax, "y_min": c.YMin, "y_max": c.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("calibration.%s must be finite", name)
		}
	}
	if c.XMin >= c.XMax {
		return nil, fmt.Errorf("calibration.x_min must be < calibration.x_max")
	}
	if c.YMin >= c.YMax {
		return nil, fmt.Errorf("calibration.y_min must be < calibration.y_max")
	}
	if c.Passes < 1 {
		return nil, fmt.Errorf("calibration.passes must be >= 1")
	}
	if c.SettleMS < 0 {
		return nil, fmt.Errorf("calibration.settle_ms must be >= 0")
	}

	if cfg.Tracking.TickHz <= 0 || math.IsInf(cfg.Tracking.TickHz, 0) || math.IsNaN(cfg.Tracking.TickHz) {
		return nil, fmt.Errorf("tracking.tick_hz must be > 0")
	}
	if cfg.Tracking.TickHz > 240 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("tracking.tick_hz=%v exceeds 240; every tick blocks on a server reply", cfg.Tracking.TickHz)})
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "terminal" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: terminal, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
