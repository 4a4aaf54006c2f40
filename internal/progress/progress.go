// Package progress prints a single-line progress display for CLI batch runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/guarzo/pkmprices/internal/clock"
)

// Indicator tracks a count of processed items. Safe for concurrent use.
type Indicator struct {
	mu         sync.Mutex
	out        io.Writer
	clock      clock.Clock
	enabled    bool
	message    string
	total      int
	current    int
	failed     int
	startTime  time.Time
	lastUpdate time.Time
}

// NewIndicator creates an indicator writing to out. A zero total shows a
// spinner instead of a bar.
func NewIndicator(out io.Writer, message string, total int, enabled bool) *Indicator {
	return &Indicator{
		out:     out,
		clock:   clock.Real{},
		enabled: enabled && out != nil,
		message: message,
		total:   total,
	}
}

// WithClock swaps the time source, for tests.
func (p *Indicator) WithClock(c clock.Clock) *Indicator {
	p.clock = c
	return p
}

// Start prints the heading.
func (p *Indicator) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = p.clock.Now()
	p.lastUpdate = time.Time{}
	if p.enabled {
		fmt.Fprintf(p.out, "%s...\n", p.message)
	}
}

// SetTotal fixes the total once it is known.
func (p *Indicator) SetTotal(total int) {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()
}

// Add records n processed items, failed of which did not succeed.
func (p *Indicator) Add(n, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.failed += failed
	p.render()
}

// Counts returns processed and failed totals so far.
func (p *Indicator) Counts() (current, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.failed
}

// render redraws at most every 100ms, and always on the final item.
func (p *Indicator) render() {
	if !p.enabled {
		return
	}
	now := p.clock.Now()
	if now.Sub(p.lastUpdate) < 100*time.Millisecond && (p.total == 0 || p.current < p.total) {
		return
	}
	p.lastUpdate = now
	elapsed := now.Sub(p.startTime)

	if p.total <= 0 {
		fmt.Fprintf(p.out, "\r%s %s %d processed, %d failed", p.message, spinner(elapsed), p.current, p.failed)
		return
	}

	pct := float64(p.current) / float64(p.total) * 100
	eta := ""
	if p.current > 0 && elapsed > 0 {
		perItem := elapsed / time.Duration(p.current)
		eta = " ETA: " + formatDuration(perItem*time.Duration(max(p.total-p.current, 0)))
	}
	fmt.Fprintf(p.out, "\r%s [%s] %d/%d (%.1f%%)%s", p.message, bar(pct), p.current, p.total, pct, eta)
}

// Finish prints the summary line.
func (p *Indicator) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	elapsed := p.clock.Now().Sub(p.startTime)
	fmt.Fprintf(p.out, "\r%s done: %d cards, %d failed in %s\n", p.message, p.current, p.failed, formatDuration(elapsed))
}

// FinishWithError prints the failure line.
func (p *Indicator) FinishWithError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	elapsed := p.clock.Now().Sub(p.startTime)
	fmt.Fprintf(p.out, "\r%s failed after %s (%d processed): %v\n", p.message, formatDuration(elapsed), p.current, err)
}

const barWidth = 30

func bar(pct float64) string {
	pct = min(max(pct, 0), 100)
	filled := int(pct / 100 * barWidth)
	return strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

func spinner(elapsed time.Duration) string {
	return spinnerFrames[int(elapsed.Milliseconds()/100)%len(spinnerFrames)]
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
