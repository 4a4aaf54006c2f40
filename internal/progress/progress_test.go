package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/pkmprices/internal/clock"
)

func newTestIndicator(total int, enabled bool) (*Indicator, *bytes.Buffer, *clock.Fake) {
	var buf bytes.Buffer
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewIndicator(&buf, "Refreshing", total, enabled).WithClock(clk), &buf, clk
}

func TestIndicator_Bar(t *testing.T) {
	p, buf, clk := newTestIndicator(10, true)
	p.Start()
	clk.Advance(time.Second)
	p.Add(5, 1)

	out := buf.String()
	if !strings.Contains(out, "Refreshing...") {
		t.Errorf("missing heading: %q", out)
	}
	if !strings.Contains(out, "5/10 (50.0%)") {
		t.Errorf("missing counts: %q", out)
	}
	if !strings.Contains(out, "ETA: 1.0s") {
		t.Errorf("missing eta: %q", out)
	}
	if current, failed := p.Counts(); current != 5 || failed != 1 {
		t.Errorf("counts = %d, %d", current, failed)
	}
}

func TestIndicator_Throttles(t *testing.T) {
	p, buf, clk := newTestIndicator(0, true)
	p.Start()
	p.Add(1, 0)
	before := buf.Len()
	p.Add(1, 0) // same instant, skipped
	if buf.Len() != before {
		t.Error("updates within 100ms should not redraw")
	}
	clk.Advance(150 * time.Millisecond)
	p.Add(1, 0)
	if !strings.Contains(buf.String(), "3 processed") {
		t.Errorf("expected redraw after 150ms: %q", buf.String())
	}
}

func TestIndicator_Disabled(t *testing.T) {
	p, buf, _ := newTestIndicator(3, false)
	p.Start()
	p.Add(3, 0)
	p.Finish()
	p.FinishWithError(errors.New("x"))
	if buf.Len() != 0 {
		t.Errorf("disabled indicator wrote %q", buf.String())
	}
	if current, _ := p.Counts(); current != 3 {
		t.Error("disabled indicator should still count")
	}
}

func TestIndicator_Finish(t *testing.T) {
	p, buf, clk := newTestIndicator(0, true)
	p.Start()
	p.Add(4, 2)
	clk.Advance(2 * time.Minute)
	p.Finish()
	if !strings.Contains(buf.String(), "done: 4 cards, 2 failed in 2.0m") {
		t.Errorf("unexpected summary %q", buf.String())
	}

	p.FinishWithError(errors.New("db closed"))
	if !strings.Contains(buf.String(), "db closed") {
		t.Error("error not printed")
	}
}

func TestBar(t *testing.T) {
	tests := map[float64]string{
		0:   strings.Repeat("-", 30),
		50:  strings.Repeat("#", 15) + strings.Repeat("-", 15),
		100: strings.Repeat("#", 30),
		140: strings.Repeat("#", 30),
	}
	for pct, want := range tests {
		if got := bar(pct); got != want {
			t.Errorf("bar(%.0f) = %q", pct, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		500 * time.Millisecond:  "500ms",
		1500 * time.Millisecond: "1.5s",
		90 * time.Second:        "1.5m",
		3 * time.Hour:           "3.0h",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
