// ABOUTME: Bounded line buffer retaining the most recent agent output.
// ABOUTME: Drop-oldest eviction keeps memory bounded regardless of agent chatter.

package agent

import (
	"strings"
	"sync"
)

// lineBuffer accumulates raw output chunks and retains at most maxLines
// complete lines, evicting the oldest once the cap is exceeded. A trailing
// partial line is kept until its newline arrives.
type lineBuffer struct {
	mu       sync.Mutex
	lines    []string
	partial  strings.Builder
	maxLines int
}

func newLineBuffer(maxLines int) *lineBuffer {
	if maxLines <= 0 {
		maxLines = 10000
	}
	return &lineBuffer{maxLines: maxLines}
}

// Append splits a chunk into lines and stores them. Carriage returns from the
// pty's output translation are stripped.
func (b *lineBuffer) Append(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range chunk {
		if c == '\n' {
			b.lines = append(b.lines, b.partial.String())
			b.partial.Reset()
			continue
		}
		if c == '\r' {
			continue
		}
		b.partial.WriteByte(c)
	}

	if over := len(b.lines) - b.maxLines; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

// Lines returns up to max of the most recent complete lines, oldest first.
// max <= 0 returns everything retained.
func (b *lineBuffer) Lines(max int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if max > 0 && len(b.lines) > max {
		start = len(b.lines) - max
	}
	out := make([]string, len(b.lines)-start)
	copy(out, b.lines[start:])
	return out
}

// Flush promotes any pending partial line so it becomes visible after the
// stream has ended.
func (b *lineBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.partial.Len() > 0 {
		b.lines = append(b.lines, b.partial.String())
		b.partial.Reset()
		if over := len(b.lines) - b.maxLines; over > 0 {
			b.lines = append(b.lines[:0], b.lines[over:]...)
		}
	}
}
