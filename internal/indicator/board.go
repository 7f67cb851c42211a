package indicator

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// markerCount matches the four fixation markers of a calibration pass.
const markerCount = 4

// Board draws the calibration markers on a single terminal line. The
// highlighted marker is red; the rest are white.
type Board struct {
	out io.Writer

	mu     sync.Mutex
	active *color.Color
	idle   *color.Color
	prompt *color.Color
}

// NewBoard returns a board writing to out. A nil out discards output.
func NewBoard(out io.Writer) *Board {
	if out == nil {
		out = io.Discard
	}
	return &Board{
		out:    out,
		active: color.New(color.FgRed, color.Bold),
		idle:   color.New(color.FgWhite),
		prompt: color.New(color.Faint),
	}
}

// Render redraws the marker line in place. highlighted < 0 shows no
// highlighted marker.
func (b *Board) Render(highlighted int, prompt string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, "\r\033[K%s  %s", b.line(highlighted), b.prompt.Sprint(prompt))
}

// Finish ends the marker line with a final message.
func (b *Board) Finish(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, "\r\033[K%s\n", text)
}

func (b *Board) line(highlighted int) string {
	cells := make([]string, 0, markerCount)
	for i := 0; i < markerCount; i++ {
		if i == highlighted {
			cells = append(cells, b.active.Sprintf("(●%d)", i+1))
			continue
		}
		cells = append(cells, b.idle.Sprintf("(○%d)", i+1))
	}
	return strings.Join(cells, " ")
}
