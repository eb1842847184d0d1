package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// NewJSONLogger writes JSON records to stdout.
func NewJSONLogger(service, level string) *slog.Logger {
	return NewLogger(os.Stdout, service, level)
}

// NewLogger tags every record with the service name. Decimal amounts are
// rendered as strings so credit values keep their exact precision.
func NewLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler).With("service", service)
}

func ParseLevel(level string) slog.Level {
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

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	switch v := a.Value.Any().(type) {
	case decimal.Decimal:
		return slog.String(a.Key, v.String())
	case *decimal.Decimal:
		if v == nil {
			return slog.String(a.Key, "")
		}
		return slog.String(a.Key, v.String())
	}
	return a
}
