package protocol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrRequestOutstanding rejects a request sent before the previous reply arrived.
var ErrRequestOutstanding = errors.New("previous request still awaiting a reply")

// LineTransport is the line-oriented connection a Session runs over.
type LineTransport interface {
	SendLine(text string) error
	ReceiveLine() (string, error)
	Close() error
}

// Session serializes protocol exchanges over one transport and logs traffic.
type Session struct {
	transport LineTransport
	logger    *slog.Logger

	mu          sync.Mutex
	outstanding Command
}

// NewSession wraps transport. A nil logger discards traffic logs.
func NewSession(transport LineTransport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{transport: transport, logger: logger}
}

// Send writes cmd. Commands that expect a reply are refused while an earlier
// reply is still owed; STOP is a notification and always goes out.
func (s *Session) Send(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.ExpectsReply() && s.outstanding != "" {
		return fmt.Errorf("%w: send %q while %q is pending", ErrRequestOutstanding, cmd, s.outstanding)
	}

	if err := s.transport.SendLine(string(cmd)); err != nil {
		s.logger.Warn("protocol send failed", "command", string(cmd), "error", err.Error())
		return err
	}
	s.logger.Debug("protocol sent", "command", string(cmd))

	if cmd.ExpectsReply() {
		s.outstanding = cmd
	}
	return nil
}

// Receive reads the next reply line verbatim. The pending request is settled
// whether or not the read succeeds.
func (s *Session) Receive() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiveLocked()
}

func (s *Session) receiveLocked() (string, error) {
	pending := s.outstanding
	s.outstanding = ""

	line, err := s.transport.ReceiveLine()
	if err != nil {
		s.logger.Warn("protocol receive failed", "request", string(pending), "error", err.Error())
		return "", err
	}
	s.logger.Debug("protocol received", "request", string(pending), "line", line)
	return line, nil
}

// Drain consumes and discards the reply owed to an abandoned request.
func (s *Session) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outstanding == "" {
		return nil
	}
	line, err := s.receiveLocked()
	if err != nil {
		return err
	}
	s.logger.Debug("protocol drained reply", "line", line)
	return nil
}

// Outstanding returns the request still awaiting a reply, or "".
func (s *Session) Outstanding() Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}
