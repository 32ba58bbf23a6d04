package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 20

// ProgressDisplay renders a single-line progress bar for an extraction run.
// Progress is measured as the share of the time window between now and the
// cutoff already covered by the newest-to-oldest walk.
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	now     func() time.Time
	plain   bool
	started time.Time
	handle  string
	cutoff  time.Time
	total   int
	latest  time.Time
}

// NewProgressDisplay writes to out. With plain set it prints only the final
// summary, for non-terminal output or debug logging.
func NewProgressDisplay(out io.Writer, plain bool) *ProgressDisplay {
	return &ProgressDisplay{out: out, now: time.Now, plain: plain}
}

// Start marks the beginning of a run
func (p *ProgressDisplay) Start(handle string, cutoff time.Time, resumed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handle = handle
	p.cutoff = cutoff
	p.total = resumed
	p.started = p.now()
	p.latest = p.started

	if resumed > 0 {
		fmt.Fprintf(p.out, "%s resuming after %d posts\n", Cyan("@"+handle), resumed)
	}
}

// Update records the running total and the timestamp of the newest-seen
// oldest post
func (p *ProgressDisplay) Update(total int, latest time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.latest = latest
	if !p.plain {
		p.render()
	}
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete(total int, state string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.started)
	if !p.plain && p.total > 0 {
		fmt.Fprintln(p.out)
	}

	mark := Green("✓")
	if state == "failed" {
		mark = Red("✗")
	}
	fmt.Fprintf(p.out, "%s %d posts from @%s (%s) in %s\n",
		mark, total, p.handle, state, formatDuration(elapsed))
}

// Fraction returns the covered share of the window in [0, 1]
func (p *ProgressDisplay) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction()
}

func (p *ProgressDisplay) fraction() float64 {
	window := p.started.Sub(p.cutoff)
	if window <= 0 {
		return 1
	}
	f := float64(p.started.Sub(p.latest)) / float64(window)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func (p *ProgressDisplay) render() {
	filled := int(p.fraction() * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d posts • back to %s",
		Cyan("@"+p.handle), bar, p.total, p.latest.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
