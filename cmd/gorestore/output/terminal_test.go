package output

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTTY struct {
	tty   bool
	width int
}

func (f fakeTTY) IsTTY(io.Writer) bool { return f.tty }

func (f fakeTTY) GetSize(io.Writer) (int, int, error) {
	if !f.tty {
		return 0, 0, os.ErrInvalid
	}
	return f.width, 40, nil
}

func TestTerminalStatus_NotATerminal(t *testing.T) {
	var out bytes.Buffer
	status := NewTerminalStatus(&out, "Restore", fakeTTY{})
	time.Sleep(50 * time.Millisecond)
	status.Stop()
	status.Stop()

	assert.False(t, status.IsTTY())
	assert.Empty(t, out.String())
}

func TestTerminalStatus_Render(t *testing.T) {
	status := &TerminalStatus{label: "Restore", width: 80, start: time.Now()}
	got := status.render()

	assert.True(t, strings.HasPrefix(got, "\x1B[?25l\x1B[80G\x1B[14D"), got)
	assert.Contains(t, got, "Restore (0.0s)")
	assert.True(t, strings.HasSuffix(got, "\r\x1B[?25h"))

	wide := &TerminalStatus{label: "Restore", width: 300, start: time.Now()}
	assert.Contains(t, wide.render(), "\x1B[120G")
}

func TestTerminalStatus_StopClearsLine(t *testing.T) {
	var out syncBuffer
	status := NewTerminalStatus(&out, "Restore", fakeTTY{tty: true, width: 100})
	assert.True(t, status.IsTTY())
	status.Stop()

	assert.True(t, strings.HasSuffix(out.String(), "\x1B[K"))
	assert.Greater(t, status.Elapsed(), time.Duration(0))
}

// syncBuffer is a bytes.Buffer safe for the updater goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
