// Package protocol defines the gaze-server command vocabulary and the session
// that frames, logs, and sequences request/response exchanges.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command is one outbound protocol line.
type Command string

const (
	CommandLaunch  Command = "LAUNCH"
	CommandStop    Command = "STOP"
	CommandProceed Command = "PROCEED"
	CommandTake    Command = "TAKE"
)

const (
	ReplyCalibrate = "CAL"
	ReplyNext      = "NEXT"
	ReplyWaiting   = "WAITING"
)

// Delimiter separates fields in REQ commands and coordinate replies.
const Delimiter = "$"

const requestPrefix = "REQ"

// ErrMalformedSample indicates a coordinate reply that is not "<x>$<y>".
var ErrMalformedSample = errors.New("malformed gaze sample")

// Sample is one parsed gaze coordinate pair.
type Sample struct {
	X float64
	Y float64
}

// Bounds are the calibration extents negotiated with the server.
type Bounds struct {
	XMin   float64
	XMax   float64
	YMin   float64
	YMax   float64
	Passes int
}

// CalibrationRequest builds the REQ$xMin$xMax$yMin$yMax$passes command.
func CalibrationRequest(b Bounds) Command {
	fields := []string{
		requestPrefix,
		formatFloat(b.XMin),
		formatFloat(b.XMax),
		formatFloat(b.YMin),
		formatFloat(b.YMax),
		strconv.Itoa(b.Passes),
	}
	return Command(strings.Join(fields, Delimiter))
}

// IsCalibrationRequest reports whether cmd opens a calibration negotiation.
func IsCalibrationRequest(cmd Command) bool {
	return strings.HasPrefix(string(cmd), requestPrefix+Delimiter)
}

// ExpectsReply reports whether the server answers cmd with one line.
func (c Command) ExpectsReply() bool {
	return c != CommandStop
}

// ParseSample parses a "<x>$<y>" coordinate reply.
func ParseSample(line string) (Sample, error) {
	fields := strings.Split(line, Delimiter)
	if len(fields) != 2 {
		return Sample{}, fmt.Errorf("%w: want 2 fields, got %d in %q", ErrMalformedSample, len(fields), line)
	}

	x, err := parseCoordinate(fields[0])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: x in %q: %w", ErrMalformedSample, line, err)
	}
	y, err := parseCoordinate(fields[1])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: y in %q: %w", ErrMalformedSample, line, err)
	}
	return Sample{X: x, Y: y}, nil
}

// FormatSample renders s in the wire format ParseSample accepts.
func FormatSample(s Sample) string {
	return formatFloat(s.X) + Delimiter + formatFloat(s.Y)
}

func parseCoordinate(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return value, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
