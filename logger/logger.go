package logger

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	rootLogger   *slog.Logger
	programLevel = new(slog.LevelVar) // Info by default
	setup        sync.Once
)

// Setup initializes and returns the process-wide logger. The first
// call wins; later calls return the same logger.
func Setup() *slog.Logger {
	setup.Do(func() {
		rootLogger = build(os.Getenv("QL_LOG_FORMAT"))
		slog.SetDefault(rootLogger)
	})
	return rootLogger
}

// Configure rebuilds the default logger with the given level and
// format ("text" or "json"). Meant to be called once at startup after
// the configuration is loaded, before long-lived components capture a
// logger.
func Configure(level, format string) *slog.Logger {
	Setup()
	programLevel.Set(ParseLevel(level))
	rootLogger = build(format)
	slog.SetDefault(rootLogger)
	return rootLogger
}

// ParseLevel maps a config level string to a slog level. Unknown
// values fall back to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func build(format string) *slog.Logger {
	logOptions := &slog.HandlerOptions{Level: programLevel}

	if len(os.Getenv("INVOCATION_ID")) > 0 {
		// don't add timestamps when running under systemd
		log.Default().SetFlags(0)

		logOptions.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = ""
				a.Value = slog.AnyValue(nil)
			}
			return a
		}
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, logOptions)
	} else {
		handler = slog.NewTextHandler(os.Stderr, logOptions)
	}

	return slog.New(handler)
}

type loggerKey struct{}

// NewContext adds the logger to the context.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext retrieves a logger from the context. If there is none,
// it returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return Setup()
}
