package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// BarRenderer draws a two-line progress display (title + bar) on a TTY,
// or prints timestamped single lines on a non-TTY.
type BarRenderer struct {
	out   io.Writer
	start time.Time
	isTTY bool
	width int

	mu        sync.Mutex
	lastStage Stage
	lines     int // number of lines currently written (for TTY overwrite)
}

// NewBarRenderer creates a renderer that writes to out.
// It auto-detects TTY mode and terminal width.
func NewBarRenderer(out *os.File) *BarRenderer {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}

	return newBarRenderer(out, tty, width)
}

func newBarRenderer(out io.Writer, tty bool, width int) *BarRenderer {
	return &BarRenderer{
		out:   out,
		start: time.Now(),
		isTTY: tty,
		width: width,
	}
}

// Handle processes a progress event. It satisfies the Callback type and is
// safe to call from the estimator goroutine.
func (r *BarRenderer) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Elapsed = time.Since(r.start)

	if !e.Active {
		if r.isTTY && r.lines > 0 {
			r.clearLines()
		}
		r.lastStage = ""
		return
	}

	if r.isTTY {
		r.renderTTY(e)
		return
	}
	// Only print on stage transitions, not every tick.
	if e.Stage != r.lastStage {
		fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), e.Title)
	}
	r.lastStage = e.Stage
}

// Finish clears any progress lines still on screen.
func (r *BarRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isTTY && r.lines > 0 {
		r.clearLines()
	}
}

func (r *BarRenderer) renderTTY(e Event) {
	if r.lines > 0 {
		r.clearLines()
	}

	msg := fmt.Sprintf("  %s", e.Title)
	if e.Message != "" {
		msg += " - " + e.Message
	}
	bar := renderBar(e.Percent, r.barWidth())
	pctStr := fmt.Sprintf("%3d%%", int(e.Percent))
	line2 := fmt.Sprintf("  %s %s  %s", bar, pctStr, formatElapsed(e.Elapsed))

	fmt.Fprintf(r.out, "%s\n%s", msg, line2)
	r.lastStage = e.Stage
	r.lines = 2
}

func (r *BarRenderer) clearLines() {
	for i := 0; i < r.lines; i++ {
		if i == 0 {
			fmt.Fprint(r.out, "\r\033[2K")
		} else {
			fmt.Fprint(r.out, "\033[A\033[2K")
		}
	}
	fmt.Fprint(r.out, "\r")
	r.lines = 0
}

// barWidth returns the width available for the bar, accounting for brackets,
// percent, elapsed, and padding.
func (r *BarRenderer) barWidth() int {
	w := r.width - 16
	if w < 20 {
		w = 20
	}
	if w > 60 {
		w = 60
	}
	return w
}

// RenderBar draws a [####....] style bar for a 0–100 percentage.
func RenderBar(pct float64, width int) string {
	return renderBar(pct, width)
}

func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", empty) + "]"
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	mins := total / 60
	secs := total % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}
