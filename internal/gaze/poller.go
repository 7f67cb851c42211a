// Package gaze runs the strict request/response loop that streams gaze
// coordinates from the server to a target consumer.
package gaze

import (
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/sightline/internal/protocol"
)

// Target consumes the current gaze position once per tick.
type Target interface {
	SetTarget(x, y float64)
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(x, y float64)

func (f TargetFunc) SetTarget(x, y float64) {
	f(x, y)
}

// Exchanger is the protocol surface the poller needs.
type Exchanger interface {
	Send(protocol.Command) error
	Receive() (string, error)
}

// Stats counts poller outcomes since activation.
type Stats struct {
	Ticks           int
	Samples         int
	ParseFailures   int
	ReceiveFailures int
}

// Poller forwards one gaze sample per tick and requests the next.
type Poller struct {
	session Exchanger
	target  Target
	logger  *slog.Logger

	mu      sync.Mutex
	current protocol.Sample
	stats   Stats
	active  bool
}

// NewPoller builds a poller over session that drives target.
func NewPoller(session Exchanger, target Target, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{session: session, target: target, logger: logger}
}

// Activate notifies the server that a tracking screen began.
func (p *Poller) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.session.Send(protocol.CommandLaunch); err != nil {
		p.logger.Error("gaze launch failed", "error", err.Error())
		return err
	}
	p.active = true
	p.stats = Stats{}
	return nil
}

// Tick receives one reply, forwards the current position, and requests the
// next sample. Receive and parse failures keep the previous position.
func (p *Poller) Tick() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Ticks++

	line, err := p.session.Receive()
	switch {
	case err != nil:
		p.stats.ReceiveFailures++
		p.logger.Debug("gaze receive failed; holding target", "error", err.Error())
	default:
		sample, parseErr := protocol.ParseSample(line)
		if parseErr != nil {
			p.stats.ParseFailures++
			p.logger.Error("gaze sample parse failed; holding target", "error", parseErr.Error())
			break
		}
		p.current = sample
		p.stats.Samples++
	}

	p.target.SetTarget(p.current.X, p.current.Y)

	if err := p.session.Send(protocol.CommandProceed); err != nil {
		return err
	}
	return nil
}

// Shutdown tells the server the tracking session is ending. It only sends
// STOP once per activation.
func (p *Poller) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return nil
	}
	p.active = false
	return p.session.Send(protocol.CommandStop)
}

// Current returns the last successfully parsed sample.
func (p *Poller) Current() protocol.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Stats returns a snapshot of poller counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Active reports whether LAUNCH was sent and STOP has not been.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
