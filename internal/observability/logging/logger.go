package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// maxValueRunes bounds string attributes; raw model output and upstream
// error bodies can run to many kilobytes.
const maxValueRunes = 1024

func NewJSONLogger(service, level string) *slog.Logger {
	return NewJSONLoggerTo(os.Stdout, service, level)
}

// NewJSONLoggerTo writes to w. The CLI logs to stderr so stdout stays free
// for results and the MCP stdio transport.
func NewJSONLoggerTo(w io.Writer, service, level string) *slog.Logger {
	lvl := parseLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl == slog.LevelDebug,
		ReplaceAttr: truncateLongValues,
	})
	return slog.New(handler).With("service", service)
}

func truncateLongValues(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		if err, ok := a.Value.Any().(error); ok {
			a.Value = slog.StringValue(err.Error())
		} else {
			return a
		}
	}
	s := a.Value.String()
	if utf8.RuneCountInString(s) <= maxValueRunes {
		return a
	}
	runes := []rune(s)
	a.Value = slog.StringValue(string(runes[:maxValueRunes]) + "...")
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
