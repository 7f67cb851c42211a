// Package session owns the server connection and switches between gaze
// tracking and calibration as screens change.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rbright/sightline/internal/calibration"
	"github.com/rbright/sightline/internal/fsm"
	"github.com/rbright/sightline/internal/gaze"
	"github.com/rbright/sightline/internal/protocol"
	"github.com/rbright/sightline/internal/transport"
	"golang.org/x/time/rate"
)

// ScreenKind classifies a screen the application entered.
type ScreenKind string

const (
	ScreenCalibration ScreenKind = "calibration"
	ScreenTracking    ScreenKind = "tracking"
	ScreenOther       ScreenKind = "other"
)

// ParseScreenKind validates a screen kind name.
func ParseScreenKind(raw string) (ScreenKind, error) {
	switch kind := ScreenKind(raw); kind {
	case ScreenCalibration, ScreenTracking, ScreenOther:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown screen kind %q", raw)
	}
}

var (
	// ErrClosed rejects screen changes after shutdown.
	ErrClosed = errors.New("session closed")
	// ErrConnectionLost reports a broken gaze server connection. It is never
	// redialed.
	ErrConnectionLost = errors.New("gaze server connection lost")
)

// DialFunc opens the line connection to the gaze server.
type DialFunc func(context.Context) (protocol.LineTransport, error)

// Status is a point-in-time view of the lifecycle.
type Status struct {
	Screen       ScreenKind
	Connected    bool
	ConnectionID string
	Calibrated   bool
	Calibration  fsm.State
	Progress     calibration.Progress
	Awaiting     bool
	Target       protocol.Sample
	Tracking     gaze.Stats
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithBounds sets the bounds used for every calibration run.
func WithBounds(bounds protocol.Bounds) Option {
	return func(l *Lifecycle) {
		l.bounds = bounds
	}
}

// WithCalibrationOptions forwards options to each calibration controller.
func WithCalibrationOptions(opts ...calibration.Option) Option {
	return func(l *Lifecycle) {
		l.calibrationOpts = append(l.calibrationOpts, opts...)
	}
}

// WithFlag shares an existing calibrated flag.
func WithFlag(flag *calibration.Flag) Option {
	return func(l *Lifecycle) {
		if flag != nil {
			l.flag = flag
		}
	}
}

// Lifecycle activates exactly one gaze consumer per screen over one
// lazily dialed connection.
type Lifecycle struct {
	logger          *slog.Logger
	dial            DialFunc
	target          gaze.Target
	indicator       calibration.Indicator
	navigator       calibration.Navigator
	flag            *calibration.Flag
	bounds          protocol.Bounds
	calibrationOpts []calibration.Option

	mu              sync.Mutex
	screen          ScreenKind
	session         *protocol.Session
	connLogger      *slog.Logger
	connectionID    string
	poller          *gaze.Poller
	calibrator      *calibration.Controller
	lastCalibration calibration.Result
	returnRequested bool
	lost            error
	closed          bool

	// active is read by Trigger without taking mu, which Tick holds across
	// blocking network calls.
	active   atomic.Pointer[calibration.Controller]
	snapshot atomic.Pointer[Status]
}

// NewLifecycle constructs a lifecycle. A nil target disables tracking screens.
func NewLifecycle(
	dial DialFunc,
	target gaze.Target,
	indicator calibration.Indicator,
	navigator calibration.Navigator,
	logger *slog.Logger,
	opts ...Option,
) *Lifecycle {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if navigator == nil {
		navigator = calibration.NavigatorFunc(func(context.Context) {})
	}

	l := &Lifecycle{
		logger:    logger,
		dial:      dial,
		target:    target,
		indicator: indicator,
		navigator: navigator,
		flag:      &calibration.Flag{},
		bounds:    calibration.DefaultBounds(),
		screen:    ScreenOther,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.publishLocked()
	return l
}

// OnScreenEntered deactivates the current consumer and activates the one
// matching kind.
func (l *Lifecycle) OnScreenEntered(ctx context.Context, kind ScreenKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.publishLocked()

	if l.closed {
		return ErrClosed
	}
	if _, err := ParseScreenKind(string(kind)); err != nil {
		return err
	}

	l.deactivateLocked()

	switch kind {
	case ScreenCalibration:
		return l.enterCalibrationLocked(ctx)
	case ScreenTracking:
		if l.target == nil {
			l.logger.Debug("tracking screen without a target; no consumer activated")
			return nil
		}
		return l.enterTrackingLocked(ctx)
	default:
		return nil
	}
}

func (l *Lifecycle) enterCalibrationLocked(ctx context.Context) error {
	if err := l.connectLocked(ctx); err != nil {
		return err
	}

	opts := append([]calibration.Option(nil), l.calibrationOpts...)
	controller := calibration.NewController(
		l.session,
		l.indicator,
		calibration.NavigatorFunc(func(context.Context) { l.returnRequested = true }),
		l.flag,
		l.connLogger,
		opts...,
	)
	if err := controller.Start(l.bounds); err != nil {
		return fmt.Errorf("start calibration: %w", err)
	}

	l.calibrator = controller
	l.active.Store(controller)
	l.returnRequested = false
	l.screen = ScreenCalibration
	return nil
}

func (l *Lifecycle) enterTrackingLocked(ctx context.Context) error {
	if err := l.connectLocked(ctx); err != nil {
		return err
	}

	poller := gaze.NewPoller(l.session, l.target, l.connLogger)
	if err := poller.Activate(); err != nil {
		return fmt.Errorf("activate gaze tracking: %w", err)
	}
	l.poller = poller
	l.screen = ScreenTracking
	return nil
}

// connectLocked dials once per lifecycle.
func (l *Lifecycle) connectLocked(ctx context.Context) error {
	if l.session != nil {
		return nil
	}
	if l.lost != nil {
		return l.lost
	}
	if l.dial == nil {
		return errors.New("no gaze server dialer configured")
	}

	conn, err := l.dial(ctx)
	if err != nil {
		l.logger.Error("gaze server connection failed", "error", err.Error())
		return err
	}

	l.connectionID = uuid.NewString()
	l.connLogger = l.logger.With("connection_id", l.connectionID)
	l.session = protocol.NewSession(conn, l.connLogger)
	l.connLogger.Info("gaze server connected")
	return nil
}

// deactivateLocked drops the active consumer without a handshake. A reply
// still owed to it is drained so the next consumer starts in step.
func (l *Lifecycle) deactivateLocked() {
	switch l.screen {
	case ScreenCalibration:
		if l.calibrator != nil && !l.calibrator.State().Terminal() {
			l.connLogger.Info("calibration abandoned", "state", string(l.calibrator.State()))
		}
		l.calibrator = nil
		l.active.Store(nil)
		l.returnRequested = false
	case ScreenTracking:
		l.poller = nil
	}
	l.screen = ScreenOther

	if l.session == nil {
		return
	}
	if err := l.session.Drain(); err != nil {
		l.connLogger.Warn("drain owed reply failed", "error", err.Error())
	}
}

// Tick steps the active consumer once. A finished calibration run switches
// the lifecycle to the entry screen and then notifies the navigator.
func (l *Lifecycle) Tick(ctx context.Context) {
	if l.tick(ctx) {
		l.navigator.ReturnToEntryScreen(ctx)
	}
}

func (l *Lifecycle) tick(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.publishLocked()

	if l.closed {
		return false
	}

	switch l.screen {
	case ScreenCalibration:
		status := l.calibrator.Advance(ctx)
		if status != calibration.StatusDone || !l.returnRequested {
			return false
		}
		result := l.calibrator.Result()
		l.connLogger.Info("returning to entry screen",
			"calibration", string(result.State),
			"calibrated", result.Calibrated,
		)
		l.lastCalibration = result
		l.deactivateLocked()
		if errors.Is(result.Err, transport.ErrIO) {
			l.loseConnectionLocked(result.Err)
		}
		return true
	case ScreenTracking:
		if err := l.poller.Tick(); err != nil {
			if errors.Is(err, transport.ErrIO) {
				l.loseConnectionLocked(err)
				return false
			}
			l.connLogger.Warn("gaze proceed failed", "error", err.Error())
		}
	}
	return false
}

// loseConnectionLocked drops a broken connection and the consumer using it.
// Later screens that need the server fail with ErrConnectionLost.
func (l *Lifecycle) loseConnectionLocked(cause error) {
	l.connLogger.Error("gaze server connection lost", "screen", string(l.screen), "error", cause.Error())
	l.lost = fmt.Errorf("%w: %w", ErrConnectionLost, cause)

	l.poller = nil
	l.calibrator = nil
	l.active.Store(nil)
	l.returnRequested = false
	l.screen = ScreenOther

	_ = l.session.Close()
	l.session = nil
}

// Err returns the connection failure that ended tracking, if any.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// Trigger forwards the operator's confirm event to an active calibration.
// It reports whether a highlighted marker accepted it.
func (l *Lifecycle) Trigger() bool {
	controller := l.active.Load()
	if controller == nil {
		return false
	}
	return controller.Trigger()
}

// OnShutdown sends STOP while tracking and closes the connection. Calls
// after the first are no-ops.
func (l *Lifecycle) OnShutdown(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.publishLocked()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.screen == ScreenTracking && l.poller != nil && l.poller.Active() {
		if err := l.poller.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("send stop: %w", err))
		}
	}
	l.poller = nil
	l.calibrator = nil
	l.active.Store(nil)
	l.screen = ScreenOther

	if l.session != nil {
		if err := l.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		l.connLogger.Info("gaze server connection closed")
		l.session = nil
	}
	return errors.Join(errs...)
}

// Run ticks at tickHz until ctx is done or the connection is lost.
func (l *Lifecycle) Run(ctx context.Context, tickHz float64) error {
	if tickHz <= 0 {
		return fmt.Errorf("tick rate must be > 0, got %v", tickHz)
	}

	limiter := rate.NewLimiter(rate.Limit(tickHz), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for tick: %w", err)
		}
		l.Tick(ctx)
		if err := l.Err(); err != nil {
			return err
		}
	}
}

// Status returns the snapshot published after the latest tick or screen
// change. It never waits on network calls.
func (l *Lifecycle) Status() Status {
	status := *l.snapshot.Load()
	status.Calibrated = l.flag.Calibrated()
	if controller := l.active.Load(); controller != nil {
		status.Awaiting = controller.Awaiting()
	}
	return status
}

// Calibrated reports whether any calibration run in this lifecycle completed.
func (l *Lifecycle) Calibrated() bool {
	return l.flag.Calibrated()
}

// Screen returns the active screen kind.
func (l *Lifecycle) Screen() ScreenKind {
	return l.Status().Screen
}

func (l *Lifecycle) publishLocked() {
	status := Status{
		Screen:       l.screen,
		Connected:    l.session != nil,
		ConnectionID: l.connectionID,
		Calibrated:   l.flag.Calibrated(),
		Calibration:  fsm.StateIdle,
	}
	if l.calibrator != nil {
		result := l.calibrator.Result()
		status.Calibration = result.State
		status.Progress = result.Progress
		status.Awaiting = l.calibrator.Awaiting()
	} else if l.lastCalibration.State != "" {
		status.Calibration = l.lastCalibration.State
		status.Progress = l.lastCalibration.Progress
	}
	if l.poller != nil {
		status.Target = l.poller.Current()
		status.Tracking = l.poller.Stats()
	}
	l.snapshot.Store(&status)
}
