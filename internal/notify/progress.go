package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Progress is the global progress indicator of a batch.
type Progress interface {
	Set(fraction float64)
	Done()
}

// NopProgress ignores updates.
type NopProgress struct{}

func (NopProgress) Set(float64) {}
func (NopProgress) Done()       {}

// ProgressLine draws a single-line bar on a terminal.
type ProgressLine struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	last  int
}

// NewProgressLine renders to out.
func NewProgressLine(out io.Writer) *ProgressLine {
	return &ProgressLine{out: out, width: 30, last: -1}
}

// Set redraws the bar when the filled width changes.
func (p *ProgressLine) Set(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	filled := int(fraction * float64(p.width))
	if filled == p.last {
		return
	}
	p.last = filled
	fmt.Fprintf(p.out, "\r[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(" ", p.width-filled), fraction*100)
}

// Done clears the bar.
func (p *ProgressLine) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last < 0 {
		return
	}
	p.last = -1
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.width+7))
}
