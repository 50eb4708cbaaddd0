package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// statusColumn caps the column the status is right-aligned against.
const statusColumn = 120

// TerminalStatus displays a live, right-aligned "Restore (X.Xs)" timer while a
// restore runs. On a non-terminal writer it prints nothing.
type TerminalStatus struct {
	output io.Writer
	isTTY  bool
	width  int
	label  string
	start  time.Time

	ticker *time.Ticker
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewTerminalStatus starts a status updater on output. Updates run at 30Hz.
func NewTerminalStatus(output io.Writer, label string, tty TTYDetector) *TerminalStatus {
	isTTY := tty.IsTTY(output)
	width := statusColumn
	if isTTY {
		if w, _, err := tty.GetSize(output); err == nil && w > 0 {
			width = w
		}
	}

	t := &TerminalStatus{
		output: output,
		isTTY:  isTTY,
		width:  width,
		label:  label,
		start:  time.Now(),
		done:   make(chan struct{}),
	}

	if isTTY {
		t.ticker = time.NewTicker(33 * time.Millisecond)
		go t.updateLoop()
	}

	return t
}

func (t *TerminalStatus) updateLoop() {
	for {
		select {
		case <-t.ticker.C:
			t.mu.Lock()
			if !t.stopped {
				_, _ = io.WriteString(t.output, t.render())
			}
			t.mu.Unlock()
		case <-t.done:
			return
		}
	}
}

// render returns the escape sequence that hides the cursor, moves to the
// status column, writes the status and returns the carriage.
func (t *TerminalStatus) render() string {
	status := fmt.Sprintf("%s (%.1fs)", t.label, time.Since(t.start).Seconds())
	column := min(t.width, statusColumn)
	return fmt.Sprintf("\x1B[?25l\x1B[%dG\x1B[%dD%s\r\x1B[?25h", column, len(status), status)
}

// Stop stops the updater and clears the status line. Safe to call multiple times.
func (t *TerminalStatus) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true

	if t.ticker != nil {
		t.ticker.Stop()
		close(t.done)
	}
	if t.isTTY {
		_, _ = fmt.Fprint(t.output, "\x1B[K")
	}
}

// Elapsed returns the elapsed time since start
func (t *TerminalStatus) Elapsed() time.Duration {
	return time.Since(t.start)
}

// IsTTY returns true if output is a terminal (not piped/redirected)
func (t *TerminalStatus) IsTTY() bool {
	return t.isTTY
}
