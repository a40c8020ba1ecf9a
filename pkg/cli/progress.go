package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress draws a single-line bar for batch commands and keeps a tally of
// failed items for the closing summary.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	unit    string
	total   int64
	done    int64
	failed  []string
	started time.Time
	now     func() time.Time
}

// NewProgressReporter creates a bar that writes to w and labels counts with
// unit, e.g. "tasks" or "jobs". A nil w means os.Stderr.
func NewProgressReporter(w io.Writer, unit string) *Progress {
	if w == nil {
		w = os.Stderr
	}
	return &Progress{w: w, unit: unit, now: time.Now}
}

// Start resets the bar for total items.
func (p *Progress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done = 0
	p.failed = nil
	p.started = p.now()
	p.render()
}

// Advance marks n more items done.
func (p *Progress) Advance(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+n, p.total)
	p.render()
}

// Step marks one named item done. A non-nil err is printed on its own line
// and counted as a failure.
func (p *Progress) Step(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed = append(p.failed, name)
		fmt.Fprintf(p.w, "\n✗ %s: %v\n", name, err)
	}
	p.done = min(p.done+1, p.total)
	p.render()
}

// Failed returns the names passed to Step with an error.
func (p *Progress) Failed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.failed...)
}

// Finish ends the line with the elapsed time and the failure count.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.started).Round(time.Millisecond)
	if len(p.failed) > 0 {
		fmt.Fprintf(p.w, " in %s, %d failed\n", elapsed, len(p.failed))
		return
	}
	fmt.Fprintf(p.w, " in %s\n", elapsed)
}

func (p *Progress) render() {
	if p.total <= 0 {
		return
	}
	filled := int(barWidth * p.done / p.total)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(p.w, "\r[%s] %3d%% (%d/%d %s)", bar, 100*p.done/p.total, p.done, p.total, p.unit)
}
