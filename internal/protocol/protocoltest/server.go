// Package protocoltest provides a scripted in-memory gaze server for tests.
package protocoltest

import (
	"errors"
	"sync"
	"time"

	"github.com/rbright/sightline/internal/protocol"
	"github.com/rbright/sightline/internal/transport"
)

// Handler returns the reply lines for one received command line.
type Handler func(line string) []string

// Server answers commands arriving on the peer end of a protocol.Pipe.
type Server struct {
	client *protocol.PipeEnd
	server *protocol.PipeEnd

	mu    sync.Mutex
	lines []string

	done chan struct{}
}

// NewServer starts serving handler and returns the server. Use Client as the
// transport under test.
func NewServer(handler Handler) *Server {
	client, server := protocol.Pipe()
	server.SetReceiveTimeout(20 * time.Millisecond)

	s := &Server{client: client, server: server, done: make(chan struct{})}
	go s.serve(handler)
	return s
}

// Client returns the transport end the code under test should use.
func (s *Server) Client() *protocol.PipeEnd {
	return s.client
}

// Lines returns every command line received so far.
func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Count returns how many received lines equal line.
func (s *Server) Count(line string) int {
	n := 0
	for _, got := range s.Lines() {
		if got == line {
			n++
		}
	}
	return n
}

// Close stops the server; the client observes a closed peer.
func (s *Server) Close() {
	_ = s.server.Close()
	<-s.done
}

func (s *Server) serve(handler Handler) {
	defer close(s.done)
	for {
		line, err := s.server.ReceiveLine()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return
		}

		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()

		if handler == nil {
			continue
		}
		for _, reply := range handler(line) {
			if err := s.server.SendLine(reply); err != nil {
				return
			}
		}
	}
}

// Sequence returns a handler that answers each line matching cmd with the
// next reply in replies; once exhausted the last reply repeats.
func Sequence(cmd string, replies ...string) Handler {
	var mu sync.Mutex
	next := 0
	return func(line string) []string {
		if line != cmd || len(replies) == 0 {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		reply := replies[next]
		if next < len(replies)-1 {
			next++
		}
		return []string{reply}
	}
}

// Calibration answers a calibration request with negotiation and each TAKE
// with the next ack, repeating the last one.
func Calibration(negotiation string, acks ...string) Handler {
	takeReplies := Sequence(string(protocol.CommandTake), acks...)
	return func(line string) []string {
		if protocol.IsCalibrationRequest(protocol.Command(line)) {
			return []string{negotiation}
		}
		return takeReplies(line)
	}
}

// Stream answers LAUNCH and every PROCEED with sample.
func Stream(sample protocol.Sample) Handler {
	reply := protocol.FormatSample(sample)
	return func(line string) []string {
		switch protocol.Command(line) {
		case protocol.CommandLaunch, protocol.CommandProceed:
			return []string{reply}
		default:
			return nil
		}
	}
}

// Merge returns the replies of the first handler that answers line.
func Merge(handlers ...Handler) Handler {
	return func(line string) []string {
		for _, h := range handlers {
			if replies := h(line); len(replies) > 0 {
				return replies
			}
		}
		return nil
	}
}
