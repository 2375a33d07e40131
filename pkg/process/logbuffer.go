package process

import (
	"strings"
	"sync"
	"time"
)

// LogBuffer accumulates captured output lines with timestamps. All methods
// are safe for concurrent use; capture goroutines append while callers
// read.
type LogBuffer struct {
	mu    sync.RWMutex
	lines []logLine
}

type logLine struct {
	stamp   time.Time
	content string
}

// Append records one output line.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, logLine{stamp: time.Now(), content: line})
}

// String returns all recorded lines joined with newlines.
func (b *LogBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sb strings.Builder
	for _, l := range b.lines {
		sb.WriteString(l.content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Since returns the lines recorded after the given time.
func (b *LogBuffer) Since(since time.Time) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sb strings.Builder
	for _, l := range b.lines {
		if l.stamp.After(since) {
			sb.WriteString(l.content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Tail returns the last n lines, useful for attaching recent output to
// error reports.
func (b *LogBuffer) Tail(n int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := len(b.lines) - n
	if start < 0 {
		start = 0
	}
	var sb strings.Builder
	for _, l := range b.lines[start:] {
		sb.WriteString(l.content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Contains reports whether any recorded line contains the pattern.
func (b *LogBuffer) Contains(pattern string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, l := range b.lines {
		if strings.Contains(l.content, pattern) {
			return true
		}
	}
	return false
}

// Len returns the number of recorded lines.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.lines)
}

// Clear discards all recorded lines.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = nil
}
