// README: Structured JSON logger (log/slog) shared by every module.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
	Action(action string) Logger
	With(args ...any) Logger
}

// New builds a JSON logger writing to stdout at the given level
// (DEBUG, INFO, WARN, ERROR; anything else means INFO).
func New(level string) Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level string) Logger {
	lv := new(slog.LevelVar)
	switch strings.ToUpper(level) {
	case "DEBUG":
		lv.Set(slog.LevelDebug)
	case "WARN":
		lv.Set(slog.LevelWarn)
	case "ERROR":
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.Attr{Key: "timestamp", Value: slog.StringValue(t.Format(time.RFC3339))}
				}
			}
			return a
		},
	})
	return &logger{log: slog.New(handler).With("hostname", host)}
}

// Nop discards everything. Handy for tests and optional collaborators.
func Nop() Logger {
	return &logger{log: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

type logger struct {
	log *slog.Logger
}

func (l *logger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l *logger) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l *logger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }

// Error logs err together with a short caller stack.
func (l *logger) Error(msg string, err error, args ...any) {
	attrs := append(args, slog.Group("error",
		slog.Any("msg", err),
		slog.Any("stack", captureFrames(3, 6)),
	))
	l.log.Error(msg, attrs...)
}

func (l logger) Action(action string) Logger {
	l.log = l.log.With("action", action)
	return &l
}

func (l logger) With(args ...any) Logger {
	l.log = l.log.With(args...)
	return &l
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func captureFrames(skip, depth int) []stackFrame {
	pc := make([]uintptr, depth)
	n := runtime.Callers(skip, pc)
	frames := runtime.CallersFrames(pc[:n])

	var stack []stackFrame
	for {
		frame, more := frames.Next()
		stack = append(stack, stackFrame{
			Func:   filepath.Base(frame.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(frame.File)), filepath.Base(frame.File)),
			Line:   frame.Line,
		})
		if !more {
			break
		}
	}
	return stack
}
