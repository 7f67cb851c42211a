// Package calibration drives the marker-by-marker calibration procedure as a
// resumable state machine stepped once per external tick.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/sightline/internal/fsm"
	"github.com/rbright/sightline/internal/protocol"
)

// MarkerCount is the number of fixation markers per pass.
const MarkerCount = 4

const (
	DefaultPasses = 3
	DefaultSettle = 100 * time.Millisecond
)

// maxStepsPerAdvance bounds Advance; a full run never needs this many
// consecutive non-suspending steps.
const maxStepsPerAdvance = 32

var (
	// ErrUnexpectedReply indicates a server reply outside the expected vocabulary.
	ErrUnexpectedReply = errors.New("unexpected calibration reply")
	// ErrRunActive rejects Start while a run is still in progress.
	ErrRunActive = errors.New("calibration run already active")
)

// DefaultBounds returns the reference screen extents and pass count.
func DefaultBounds() protocol.Bounds {
	return protocol.Bounds{XMin: -10, XMax: 10, YMin: -3.8, YMax: 4, Passes: DefaultPasses}
}

// Status tells the tick driver what the controller needs next.
type Status int

const (
	// StatusContinue means the controller can step again within this tick.
	StatusContinue Status = iota + 1
	// StatusSuspend means call again on a later tick.
	StatusSuspend
	// StatusDone means the run finished and the entry screen was requested.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusSuspend:
		return "suspend"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Exchanger is the protocol surface the controller needs.
type Exchanger interface {
	Send(protocol.Command) error
	Receive() (string, error)
}

// Indicator renders markers and operator cues for the calibration screen.
type Indicator interface {
	HighlightMarker(ctx context.Context, index int, on bool)
	CueCapture(context.Context)
	CueComplete(context.Context)
	CueAbort(context.Context)
}

// noopIndicator keeps the run going when no renderer is wired.
type noopIndicator struct{}

func (noopIndicator) HighlightMarker(context.Context, int, bool) {}
func (noopIndicator) CueCapture(context.Context)                 {}
func (noopIndicator) CueComplete(context.Context)                {}
func (noopIndicator) CueAbort(context.Context)                   {}

// Navigator returns the application to its entry screen.
type Navigator interface {
	ReturnToEntryScreen(context.Context)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(context.Context)

func (f NavigatorFunc) ReturnToEntryScreen(ctx context.Context) {
	f(ctx)
}

// Flag records that a calibration run has completed. It is only ever set.
type Flag struct {
	set atomic.Bool
}

// Set marks the session calibrated.
func (f *Flag) Set() {
	f.set.Store(true)
}

// Calibrated reports whether any run has completed.
func (f *Flag) Calibrated() bool {
	return f.set.Load()
}

// Progress is the position of the current run.
// Pass may reach Passes or beyond when the server keeps answering NEXT; such
// cycles are marked Overtime.
type Progress struct {
	Pass      int
	Marker    int
	Completed bool
	Overtime  bool
}

// Result summarizes one calibration run.
type Result struct {
	State      fsm.State
	Progress   Progress
	Bounds     protocol.Bounds
	Captures   int
	Calibrated bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSettle sets the delay between a trigger and the capture request.
func WithSettle(d time.Duration) Option {
	return func(c *Controller) {
		c.settle = d
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller runs calibration over a protocol session.
type Controller struct {
	session   Exchanger
	indicator Indicator
	navigator Navigator
	flag      *Flag
	logger    *slog.Logger
	settle    time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       fsm.State
	bounds      protocol.Bounds
	progress    Progress
	captures    int
	settleUntil time.Time
	err         error
	returned    bool
	startedAt   time.Time
	finishedAt  time.Time

	// shown is true while a marker is highlighted on the indicator.
	shown bool

	awaiting atomic.Bool
	pending  atomic.Bool
}

// NewController constructs a controller with safe default fallbacks.
func NewController(
	session Exchanger,
	indicator Indicator,
	navigator Navigator,
	flag *Flag,
	logger *slog.Logger,
	opts ...Option,
) *Controller {
	if indicator == nil {
		indicator = noopIndicator{}
	}
	if navigator == nil {
		navigator = NavigatorFunc(func(context.Context) {})
	}
	if flag == nil {
		flag = &Flag{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{
		session:   session,
		indicator: indicator,
		navigator: navigator,
		flag:      flag,
		logger:    logger,
		settle:    DefaultSettle,
		now:       time.Now,
		state:     fsm.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a new run with bounds. A finished run is reset first.
func (c *Controller) Start(bounds protocol.Bounds) error {
	if bounds.Passes < 1 {
		return fmt.Errorf("calibration passes must be >= 1, got %d", bounds.Passes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		if err := c.transition(fsm.EventReset); err != nil {
			return err
		}
	}
	if c.state != fsm.StateIdle {
		return fmt.Errorf("%w (state %s)", ErrRunActive, c.state)
	}
	if err := c.transition(fsm.EventStart); err != nil {
		return err
	}

	c.bounds = bounds
	c.progress = Progress{}
	c.captures = 0
	c.err = nil
	c.returned = false
	c.startedAt = c.now()
	c.finishedAt = time.Time{}
	c.shown = false
	c.awaiting.Store(false)
	c.pending.Store(false)

	c.logger.Info("calibration started",
		"x_min", bounds.XMin, "x_max", bounds.XMax,
		"y_min", bounds.YMin, "y_max", bounds.YMax,
		"passes", bounds.Passes,
	)
	return nil
}

// Trigger signals the operator's confirm event. It is only accepted while the
// controller waits on a highlighted marker; other triggers are dropped.
func (c *Controller) Trigger() bool {
	if !c.awaiting.Load() {
		return false
	}
	c.pending.Store(true)
	return true
}

// Advance steps until the controller suspends or finishes.
func (c *Controller) Advance(ctx context.Context) Status {
	for i := 0; i < maxStepsPerAdvance; i++ {
		status := c.Step(ctx)
		if status != StatusContinue {
			return status
		}
	}
	return StatusSuspend
}

// Step performs the action of the current state once.
func (c *Controller) Step(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case fsm.StateIdle:
		return StatusDone
	case fsm.StateRequesting:
		return c.stepRequest()
	case fsm.StateNegotiating:
		return c.stepNegotiate()
	case fsm.StateMarker:
		return c.stepMarker(ctx)
	case fsm.StateAwaitingTrigger:
		return c.stepAwaitTrigger()
	case fsm.StateSettling:
		return c.stepSettle()
	case fsm.StateCapturing:
		return c.stepCapture()
	case fsm.StateAwaitingAck:
		return c.stepAwaitAck(ctx)
	case fsm.StateCompleted:
		return c.finish(ctx, true)
	case fsm.StateAborted:
		return c.finish(ctx, false)
	default:
		c.fail(fmt.Errorf("unknown calibration state %q", c.state))
		return StatusContinue
	}
}

func (c *Controller) stepRequest() Status {
	cmd := protocol.CalibrationRequest(c.bounds)
	if err := c.session.Send(cmd); err != nil {
		c.fail(fmt.Errorf("send calibration request: %w", err))
		return StatusContinue
	}
	c.mustTransition(fsm.EventRequested)
	return StatusContinue
}

func (c *Controller) stepNegotiate() Status {
	reply, err := c.session.Receive()
	if err != nil {
		c.fail(fmt.Errorf("receive negotiation reply: %w", err))
		return StatusContinue
	}
	if reply != protocol.ReplyCalibrate {
		c.fail(fmt.Errorf("%w: negotiation got %q", ErrUnexpectedReply, reply))
		return StatusContinue
	}
	c.progress = Progress{}
	c.mustTransition(fsm.EventAccepted)
	return StatusContinue
}

func (c *Controller) stepMarker(ctx context.Context) Status {
	c.pending.Store(false)
	c.indicator.HighlightMarker(ctx, c.progress.Marker, true)
	c.shown = true
	c.awaiting.Store(true)
	c.mustTransition(fsm.EventHighlighted)
	c.logger.Debug("calibration marker shown", "pass", c.progress.Pass, "marker", c.progress.Marker)
	return StatusContinue
}

func (c *Controller) stepAwaitTrigger() Status {
	if !c.pending.CompareAndSwap(true, false) {
		return StatusSuspend
	}
	c.awaiting.Store(false)
	c.settleUntil = c.now().Add(c.settle)
	c.mustTransition(fsm.EventTriggered)
	return StatusContinue
}

func (c *Controller) stepSettle() Status {
	if c.now().Before(c.settleUntil) {
		return StatusSuspend
	}
	c.mustTransition(fsm.EventSettled)
	return StatusContinue
}

func (c *Controller) stepCapture() Status {
	if err := c.session.Send(protocol.CommandTake); err != nil {
		c.fail(fmt.Errorf("send capture request: %w", err))
		return StatusContinue
	}
	c.captures++
	c.mustTransition(fsm.EventTaken)
	return StatusContinue
}

func (c *Controller) stepAwaitAck(ctx context.Context) Status {
	reply, err := c.session.Receive()
	if err != nil {
		c.fail(fmt.Errorf("receive capture reply: %w", err))
		return StatusContinue
	}

	switch reply {
	case protocol.ReplyNext:
		c.indicator.HighlightMarker(ctx, c.progress.Marker, false)
		c.shown = false
		c.indicator.CueCapture(ctx)

		next := c.progress
		next.Marker++
		if next.Marker == MarkerCount {
			next.Pass++
			next.Marker = 0
		}
		if next.Pass >= c.bounds.Passes && !next.Overtime {
			// Completion is only ever signalled by WAITING; keep cycling markers
			// until the server sends it.
			next.Overtime = true
			c.logger.Warn("calibration passes exhausted without WAITING; continuing",
				"passes", c.bounds.Passes,
				"captures", c.captures,
			)
		}
		c.progress = next
		c.mustTransition(fsm.EventNext)
		// The next marker is shown on a later tick.
		return StatusSuspend
	case protocol.ReplyWaiting:
		c.progress.Completed = true
		c.mustTransition(fsm.EventWaiting)
		return StatusContinue
	default:
		c.fail(fmt.Errorf("%w: capture got %q", ErrUnexpectedReply, reply))
		return StatusContinue
	}
}

// finish runs the terminal actions once and requests the entry screen.
func (c *Controller) finish(ctx context.Context, completed bool) Status {
	if c.returned {
		return StatusDone
	}
	c.returned = true
	c.awaiting.Store(false)
	c.finishedAt = c.now()

	if completed {
		c.flag.Set()
		c.indicator.CueComplete(ctx)
		c.logger.Info("calibration completed",
			"captures", c.captures,
			"pass", c.progress.Pass,
			"marker", c.progress.Marker,
		)
	} else {
		if c.shown {
			c.indicator.HighlightMarker(ctx, c.progress.Marker, false)
			c.shown = false
		}
		c.indicator.CueAbort(ctx)
	}

	c.navigator.ReturnToEntryScreen(ctx)
	return StatusDone
}

// fail aborts the run, leaving the calibrated flag untouched.
func (c *Controller) fail(err error) {
	c.err = err
	c.logger.Error("calibration aborted",
		"state", string(c.state),
		"pass", c.progress.Pass,
		"marker", c.progress.Marker,
		"error", err.Error(),
	)
	if transitionErr := c.transition(fsm.EventFail); transitionErr != nil {
		c.state = fsm.StateAborted
	}
}

func (c *Controller) transition(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// mustTransition applies an event the step functions only issue from the
// matching state.
func (c *Controller) mustTransition(event fsm.Event) {
	if err := c.transition(event); err != nil {
		c.fail(err)
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Awaiting reports whether a highlighted marker waits on the trigger.
func (c *Controller) Awaiting() bool {
	return c.awaiting.Load()
}

// Progress returns the current run position.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Result returns the summary of the current or last run.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Result{
		State:      c.state,
		Progress:   c.progress,
		Bounds:     c.bounds,
		Captures:   c.captures,
		Calibrated: c.flag.Calibrated(),
		Err:        c.err,
		StartedAt:  c.startedAt,
		FinishedAt: c.finishedAt,
	}
}
