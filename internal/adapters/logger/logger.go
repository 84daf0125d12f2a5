// Package logger implements a logging adapter using log/slog.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/nest/internal/core/ports"
)

// messager is implemented by zerr errors, which can report their own message without the chain.
type messager interface {
	Message() string
}

// metadataer is implemented by zerr errors carrying key/value metadata.
type metadataer interface {
	Metadata() map[string]any
}

// Logger implements ports.Logger using log/slog.
type Logger struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	jsonMode bool
	output   io.Writer
	level    slog.Level
}

// New creates a new Logger writing pretty output to stderr.
func New() ports.Logger {
	l := &Logger{output: os.Stderr, level: slog.LevelInfo}
	l.rebuild()
	return l
}

// SetOutput updates the logger's output destination, keeping the current mode.
// If w is nil, os.Stderr is used.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w == nil {
		w = os.Stderr
	}
	l.output = w
	l.rebuild()
}

// SetJSON switches between JSON and pretty logging.
func (l *Logger) SetJSON(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.jsonMode = enable
	l.rebuild()
}

// SetQuiet drops informational messages when enabled.
func (l *Logger) SetQuiet(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = slog.LevelInfo
	if enable {
		l.level = slog.LevelWarn
	}
	l.rebuild()
}

// rebuild replaces the handler. Callers hold the write lock.
func (l *Logger) rebuild() {
	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	if l.jsonMode {
		handler = slog.NewJSONHandler(l.output, opts)
	} else {
		handler = NewPrettyHandler(l.output, opts)
	}
	l.logger = slog.New(handler)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Info(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Warn(msg)
}

// Error logs an error and its cause chain.
func (l *Logger) Error(err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err == nil {
		return
	}

	if l.jsonMode {
		l.logger.Error("operation failed", "error", err)
		return
	}

	l.logger.Error(formatErrorEntries(collectErrorEntries(err)))
}

type errorEntry struct {
	message  string
	metadata map[string]any
}

// collectErrorEntries walks the error chain. zerr errors contribute their own
// message and metadata; the first standard error ends the walk with its full text.
// zerr layers without a message only carry metadata, which is merged into the
// previous entry.
func collectErrorEntries(err error) []errorEntry {
	var entries []errorEntry
	var pending map[string]any

	for current := err; current != nil; {
		m, ok := current.(messager)
		if !ok {
			entries = append(entries, errorEntry{message: current.Error(), metadata: pending})
			break
		}

		var meta map[string]any
		if md, ok := current.(metadataer); ok {
			meta = md.Metadata()
		}

		if m.Message() == "" {
			switch {
			case len(entries) > 0:
				last := &entries[len(entries)-1]
				if last.metadata == nil {
					last.metadata = map[string]any{}
				}
				maps.Copy(last.metadata, meta)
			default:
				if pending == nil {
					pending = map[string]any{}
				}
				maps.Copy(pending, meta)
			}
		} else {
			if pending != nil {
				if meta == nil {
					meta = map[string]any{}
				}
				maps.Copy(meta, pending)
				pending = nil
			}
			entries = append(entries, errorEntry{message: m.Message(), metadata: meta})
		}
		current = errors.Unwrap(current)
	}

	return entries
}

// formatErrorEntries renders the entries as "Error:" followed by an indented
// "Caused by:" list. Metadata is printed as sorted key=value pairs.
func formatErrorEntries(entries []errorEntry) string {
	var lines []string

	for i, entry := range entries {
		text := entry.message
		if kv := formatMetadata(entry.metadata); kv != "" {
			text += " (" + kv + ")"
		}
		parts := strings.Split(text, "\n")

		if i == 0 {
			lines = append(lines, "Error: "+parts[0])
			for _, line := range parts[1:] {
				lines = append(lines, "       "+line)
			}
			continue
		}

		if i == 1 {
			lines = append(lines, "", "  Caused by:")
		}
		lines = append(lines, "    → "+parts[0])
		for _, line := range parts[1:] {
			lines = append(lines, "      "+line)
		}
	}

	return strings.Join(lines, "\n")
}

func formatMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(meta))
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(pairs, " ")
}
