package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/rbright/sightline/internal/transport"
)

const pipeBuffer = 64

// PipeEnd is one side of an in-memory line connection. It reports failures
// with the same transport errors a TCP connection would.
type PipeEnd struct {
	in   <-chan string
	out  chan<- string
	done chan struct{}
	peer <-chan struct{}

	once           sync.Once
	receiveTimeout time.Duration
}

// Pipe returns two connected in-memory transports.
func Pipe() (*PipeEnd, *PipeEnd) {
	aToB := make(chan string, pipeBuffer)
	bToA := make(chan string, pipeBuffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &PipeEnd{in: bToA, out: aToB, done: aDone, peer: bDone, receiveTimeout: time.Second}
	b := &PipeEnd{in: aToB, out: bToA, done: bDone, peer: aDone, receiveTimeout: time.Second}
	return a, b
}

// SetReceiveTimeout bounds how long ReceiveLine waits for the peer.
func (p *PipeEnd) SetReceiveTimeout(d time.Duration) {
	p.receiveTimeout = d
}

func (p *PipeEnd) SendLine(text string) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: pipe closed", transport.ErrIO)
	case <-p.peer:
		return fmt.Errorf("%w: peer closed", transport.ErrIO)
	default:
	}

	select {
	case p.out <- text:
		return nil
	case <-p.peer:
		return fmt.Errorf("%w: peer closed", transport.ErrIO)
	}
}

func (p *PipeEnd) ReceiveLine() (string, error) {
	select {
	case <-p.done:
		return "", fmt.Errorf("%w: pipe closed", transport.ErrIO)
	default:
	}

	// Lines already delivered win over a closed peer.
	select {
	case line := <-p.in:
		return line, nil
	default:
	}

	timer := time.NewTimer(p.receiveTimeout)
	defer timer.Stop()

	select {
	case line := <-p.in:
		return line, nil
	case <-p.peer:
		select {
		case line := <-p.in:
			return line, nil
		default:
		}
		return "", fmt.Errorf("%w: peer closed", transport.ErrIO)
	case <-p.done:
		return "", fmt.Errorf("%w: pipe closed", transport.ErrIO)
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", transport.ErrTimeout, p.receiveTimeout)
	}
}

func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
