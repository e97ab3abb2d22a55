// ABOUTME: Tests for the bounded line buffer: splitting, eviction, partial lines.

package agent

import (
	"fmt"
	"reflect"
	"testing"
)

func TestLineBufferSplitsChunks(t *testing.T) {
	b := newLineBuffer(100)

	b.Append([]byte("hello\r\nwor"))
	b.Append([]byte("ld\r\n"))

	got := b.Lines(0)
	want := []string{"hello", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineBufferPartialLineHiddenUntilFlush(t *testing.T) {
	b := newLineBuffer(100)

	b.Append([]byte("no newline yet"))
	if got := b.Lines(0); len(got) != 0 {
		t.Errorf("partial line visible early: %q", got)
	}

	b.Flush()
	got := b.Lines(0)
	if len(got) != 1 || got[0] != "no newline yet" {
		t.Errorf("flush did not promote the partial line: %q", got)
	}
}

func TestLineBufferEvictsOldest(t *testing.T) {
	b := newLineBuffer(3)

	for i := 1; i <= 5; i++ {
		b.Append([]byte(fmt.Sprintf("line-%d\n", i)))
	}

	got := b.Lines(0)
	want := []string{"line-3", "line-4", "line-5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLineBufferMaxLines(t *testing.T) {
	b := newLineBuffer(100)
	for i := 1; i <= 10; i++ {
		b.Append([]byte(fmt.Sprintf("line-%d\n", i)))
	}

	got := b.Lines(2)
	want := []string{"line-9", "line-10"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := b.Lines(50); len(got) != 10 {
		t.Errorf("expected all 10 lines, got %d", len(got))
	}
}
