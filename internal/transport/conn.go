// Package transport provides the blocking, line-oriented TCP client used to
// talk to the gaze-estimation server.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrConnection indicates the server could not be reached.
	ErrConnection = errors.New("gaze server connection failed")
	// ErrIO indicates the established connection is closed or broken.
	ErrIO = errors.New("gaze server connection broken")
	// ErrTimeout indicates no line arrived before the receive deadline.
	ErrTimeout = errors.New("gaze server receive timed out")
	// ErrInvalidLine rejects outbound text that would break line framing.
	ErrInvalidLine = errors.New("line must not contain a newline")
)

// Options configures one server connection.
type Options struct {
	Address        string
	DialTimeout    time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// Conn is one live server connection. A failure other than a receive timeout
// is terminal: every later call returns the same error.
type Conn struct {
	opts   Options
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	broken error
	closed bool
}

// Dial connects to the gaze server.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, opts.Address, err)
	}
	return newConn(conn, opts), nil
}

func newConn(conn net.Conn, opts Options) *Conn {
	return &Conn{
		opts:   opts,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Address returns the remote address this connection was dialed with.
func (c *Conn) Address() string {
	return c.opts.Address
}

// SendLine writes text followed by a newline under the send deadline.
func (c *Conn) SendLine(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidLine, text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usable(); err != nil {
		return err
	}

	if c.opts.SendTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.SendTimeout)); err != nil {
			return c.fail(fmt.Errorf("set write deadline: %w", err))
		}
	}
	if _, err := io.WriteString(c.conn, text+"\n"); err != nil {
		return c.fail(fmt.Errorf("write line: %w", err))
	}
	return nil
}

// ReceiveLine returns the next line with its terminator stripped.
func (c *Conn) ReceiveLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usable(); err != nil {
		return "", err
	}

	if c.opts.ReceiveTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReceiveTimeout)); err != nil {
			return "", c.fail(fmt.Errorf("set read deadline: %w", err))
		}
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Partial bytes stay buffered for the next read.
			if line != "" {
				c.reader = bufio.NewReader(io.MultiReader(strings.NewReader(line), c.conn))
			}
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.opts.ReceiveTimeout)
		}
		failure := c.fail(fmt.Errorf("read line: %w", err))
		if errors.Is(err, io.EOF) && line != "" {
			return trimLine(line), nil
		}
		return "", failure
	}
	return trimLine(line), nil
}

// Close releases the socket. Calling Close more than once is safe.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: connection closed", ErrIO)
	}
	return c.conn.Close()
}

func (c *Conn) usable() error {
	if c.broken != nil {
		return c.broken
	}
	return nil
}

// fail marks the connection broken and returns the sticky error.
func (c *Conn) fail(err error) error {
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: %w", ErrIO, err)
	}
	return c.broken
}

func trimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// IsConnectionRefused reports whether err is a no-listener dial failure.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
