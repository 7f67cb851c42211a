// Package indicator renders calibration markers and plays operator cues.
package indicator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/sightline/internal/config"
)

// Notify is the indicator used by runtime sessions. Markers are drawn on a
// terminal board or announced through desktop notifications, depending on
// the configured backend.
type Notify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	board    *Board
	messages messages
	play     func(cueKind) error

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	sounds                sync.WaitGroup
}

// New creates an indicator from config. Terminal output goes to out.
func New(cfg config.IndicatorConfig, out io.Writer, logger *slog.Logger) *Notify {
	return &Notify{
		cfg:      cfg,
		logger:   logger,
		board:    NewBoard(out),
		messages: indicatorMessagesFromEnv(),
		play:     emitCue,
	}
}

// HighlightMarker shows or clears one calibration marker.
func (n *Notify) HighlightMarker(ctx context.Context, index int, on bool) {
	if on {
		n.playCue(cueMarker)
	}
	if !n.cfg.Enable {
		return
	}

	highlighted := -1
	prompt := n.messages.waiting
	if on {
		highlighted = index
		prompt = n.messages.markerPrompt(index)
	}

	if n.desktop() {
		if !on {
			return
		}
		n.run(ctx, func(ctx context.Context) error {
			return n.notifyDesktop(ctx, 0, prompt)
		})
		return
	}
	n.board.Render(highlighted, prompt)
}

// CueCapture acknowledges an accepted capture.
func (n *Notify) CueCapture(context.Context) {
	n.playCue(cueCapture)
}

// CueComplete announces a completed calibration run.
func (n *Notify) CueComplete(ctx context.Context) {
	n.playCue(cueComplete)
	n.finish(ctx, n.messages.complete)
}

// CueAbort announces an aborted calibration run.
func (n *Notify) CueAbort(ctx context.Context) {
	n.playCue(cueAbort)
	n.finish(ctx, n.messages.aborted)
}

// Wait blocks until queued cues finish playing.
func (n *Notify) Wait() {
	n.sounds.Wait()
}

func (n *Notify) finish(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if n.desktop() {
		n.run(ctx, func(ctx context.Context) error {
			return n.notifyDesktop(ctx, 3000, text)
		})
		return
	}
	n.board.Finish(text)
}

func (n *Notify) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

// notifyDesktop sends a replaceable desktop notification. Only persistent
// notifications (timeoutMS == 0) keep their ID for replacement and Dismiss.
func (n *Notify) notifyDesktop(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "sightline"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	if timeoutMS > 0 {
		id = 0
	}
	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// Dismiss closes a marker prompt still on screen, if any.
func (n *Notify) Dismiss(ctx context.Context) {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

// run executes an indicator operation with a bounded timeout.
func (n *Notify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously so a slow
// sound server never stalls a tick.
func (n *Notify) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.sounds.Add(1)
	go func() {
		defer n.sounds.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.play(kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notify) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
