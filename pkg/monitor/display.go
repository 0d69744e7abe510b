package monitor

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Display receives the monitor's status text. An empty string clears it.
type Display interface {
	Show(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

// Show implements Display.
func (f DisplayFunc) Show(text string) { f(text) }

type nopDisplay struct{}

func (nopDisplay) Show(string) {}

// LogDisplay writes status changes to a structured logger.
type LogDisplay struct {
	Logger *slog.Logger
}

// Show implements Display.
func (d LogDisplay) Show(text string) {
	if d.Logger == nil {
		return
	}
	if text == "" {
		d.Logger.Info("status cleared")
		return
	}
	d.Logger.Info("status", "text", strings.ReplaceAll(text, "\n", " | "))
}

// WriterDisplay prints each status on its own line.
type WriterDisplay struct {
	mu sync.Mutex
	W  io.Writer
}

// Show implements Display.
func (d *WriterDisplay) Show(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	io.WriteString(d.W, strings.ReplaceAll(text, "\n", "  ")+"\n")
}

// Latest keeps the most recent status, for dashboards and tests.
type Latest struct {
	mu   sync.RWMutex
	text string
	n    int
}

// Show implements Display.
func (l *Latest) Show(text string) {
	l.mu.Lock()
	l.text = text
	l.n++
	l.mu.Unlock()
}

// Text returns the most recent status.
func (l *Latest) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text
}

// Updates returns how many times Show was called.
func (l *Latest) Updates() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}
