package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/sightline/internal/calibration"
	"github.com/rbright/sightline/internal/cli"
	"github.com/rbright/sightline/internal/config"
	"github.com/rbright/sightline/internal/gaze"
	"github.com/rbright/sightline/internal/indicator"
	"github.com/rbright/sightline/internal/ipc"
	"github.com/rbright/sightline/internal/protocol"
	"github.com/rbright/sightline/internal/session"
	"github.com/rbright/sightline/internal/transport"
)

// commandOwner claims the control socket and drives a lifecycle for the
// calibrate, track, and run commands.
func (r Runner) commandOwner(ctx context.Context, command cli.Command, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: another sightline session is running\n")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify := indicator.New(cfg.Indicator, r.Stdout, logger)
	defer notify.Wait()

	var target gaze.Target
	if command != cli.CommandCalibrate {
		target = newTargetPrinter(r.Stdout)
	}

	var lifecycle *session.Lifecycle
	navigator := calibration.NavigatorFunc(func(ctx context.Context) {
		if command != cli.CommandRun || !lifecycle.Calibrated() {
			cancel()
			return
		}
		if err := lifecycle.OnScreenEntered(ctx, session.ScreenTracking); err != nil {
			logger.Error("enter tracking failed", "error", err.Error())
			cancel()
		}
	})

	lifecycle = session.NewLifecycle(
		dialer(cfg.Server),
		target,
		notify,
		navigator,
		logger,
		session.WithBounds(protocol.Bounds{
			XMin:   cfg.Calibration.XMin,
			XMax:   cfg.Calibration.XMax,
			YMin:   cfg.Calibration.YMin,
			YMax:   cfg.Calibration.YMax,
			Passes: cfg.Calibration.Passes,
		}),
		session.WithCalibrationOptions(calibration.WithSettle(cfg.Calibration.Settle())),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(runCtx, listener, lifecycle)
	}()

	entry := session.ScreenCalibration
	if command == cli.CommandTrack {
		entry = session.ScreenTracking
	}
	if entry == session.ScreenCalibration && r.Stdin != nil {
		go forwardTriggers(runCtx, r.Stdin, lifecycle)
	}

	startedAt := time.Now()
	runErr := lifecycle.OnScreenEntered(runCtx, entry)
	if runErr == nil {
		runErr = lifecycle.Run(runCtx, cfg.Tracking.TickHz)
	}
	status := lifecycle.Status()
	shutdownErr := lifecycle.OnShutdown(context.Background())
	notify.Dismiss(context.Background())

	cancel()
	serverErr := <-serverErrCh

	logOutcome(logger, command, status, startedAt, errors.Join(runErr, shutdownErr))

	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if shutdownErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", shutdownErr)
		return 1
	}
	if command == cli.CommandCalibrate {
		if !status.Calibrated {
			fmt.Fprintf(r.Stderr, "error: calibration did not complete (%s)\n", status.Calibration)
			return 1
		}
		fmt.Fprintln(r.Stdout, "calibrated")
	}
	if command == cli.CommandRun && !status.Calibrated {
		fmt.Fprintf(r.Stderr, "error: calibration did not complete (%s)\n", status.Calibration)
		return 1
	}
	return 0
}

// dialer binds the configured server address and timeouts.
func dialer(server config.ServerConfig) session.DialFunc {
	return func(ctx context.Context) (protocol.LineTransport, error) {
		conn, err := transport.Dial(ctx, transport.Options{
			Address:        server.Address,
			DialTimeout:    server.DialTimeout(),
			SendTimeout:    server.SendTimeout(),
			ReceiveTimeout: server.ReceiveTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// newTargetPrinter writes "x y" whenever the tracked position changes.
func newTargetPrinter(out io.Writer) gaze.Target {
	var (
		mu     sync.Mutex
		last   protocol.Sample
		primed bool
	)
	return gaze.TargetFunc(func(x, y float64) {
		mu.Lock()
		defer mu.Unlock()
		current := protocol.Sample{X: x, Y: y}
		if primed && current == last {
			return
		}
		last, primed = current, true
		fmt.Fprintf(out, "%s %s\n", formatCoordinate(x), formatCoordinate(y))
	})
}

// forwardTriggers confirms the highlighted marker once per input line.
func forwardTriggers(ctx context.Context, in io.Reader, lifecycle *session.Lifecycle) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		lifecycle.Trigger()
	}
}

func logOutcome(logger *slog.Logger, command cli.Command, status session.Status, startedAt time.Time, err error) {
	if logger == nil {
		return
	}
	fields := []any{
		"command", command,
		"connection_id", status.ConnectionID,
		"screen", status.Screen,
		"calibrated", status.Calibrated,
		"calibration", status.Calibration,
		"pass", status.Progress.Pass,
		"marker", status.Progress.Marker,
		"samples", status.Tracking.Samples,
		"receive_failures", status.Tracking.ReceiveFailures,
		"parse_failures", status.Tracking.ParseFailures,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	}

	if err != nil {
		logger.Error("command failed", append(fields, "error", err.Error())...)
		return
	}
	logger.Info("command complete", fields...)
}
