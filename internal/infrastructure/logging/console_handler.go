package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ConsoleHandler is a slog.Handler that writes compact, human-readable
// lines: [LEVEL] [SYSTEM] [HH:MM:SS] message key=value key=value
type ConsoleHandler struct {
	w         io.Writer
	level     slog.Level
	mu        *sync.Mutex
	useColors bool
	attrs     []slog.Attr
}

// NewConsoleHandler creates a console handler. Colors are enabled only when
// the writer is a terminal.
func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{
		w:         w,
		level:     slog.LevelInfo,
		mu:        &sync.Mutex{},
		useColors: isTerminal(w),
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level.Level()
	}
	return h
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	h.colored(&buf, h.levelColor(r.Level), "["+levelString(r.Level)+"]")

	// The "system" attr gets its own bracket right after the level.
	system := ""
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		if a.Key == "system" {
			system = a.Value.String()
			continue
		}
		attrs = append(attrs, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "system" {
			system = a.Value.String()
			return true
		}
		attrs = append(attrs, a)
		return true
	})
	if system != "" {
		buf.WriteString(" ")
		h.colored(&buf, colorCyan, "["+strings.ToUpper(system)+"]")
	}

	buf.WriteString(" ")
	h.colored(&buf, colorGray, "["+r.Time.Format("15:04:05")+"]")

	buf.WriteString(" ")
	buf.WriteString(r.Message)

	for _, a := range attrs {
		buf.WriteString(" ")
		h.colored(&buf, colorGray, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	buf.WriteString("\n")

	_, err := io.WriteString(h.w, buf.String())
	return err
}

// WithAttrs returns a handler whose records carry the given attributes.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted but groups are flattened in console output.
func (h *ConsoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *ConsoleHandler) colored(buf *strings.Builder, color, s string) {
	if h.useColors {
		buf.WriteString(color)
		buf.WriteString(s)
		buf.WriteString(colorReset)
		return
	}
	buf.WriteString(s)
}

func (h *ConsoleHandler) levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func levelString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
