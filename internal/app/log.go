package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// newLogger creates a JSON logger that appends to logDir/dms.log. When
// console is non-nil the same records are also written there in
// human-readable form. Every record carries the run id.
// It returns the logger, the open log file (for cleanup), and any error.
func newLogger(logDir, runID, level string, console io.Writer) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "dms.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
	}

	var w io.Writer = f
	if console != nil {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	}
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("run", runID).Logger(), f, nil
}

func parseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// zerologAdapter wraps zerolog.Logger to satisfy the dms.Logger interface.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a *zerologAdapter) Debug(msg string, args ...any) { write(a.l.Debug(), msg, args) }
func (a *zerologAdapter) Info(msg string, args ...any)  { write(a.l.Info(), msg, args) }
func (a *zerologAdapter) Warn(msg string, args ...any)  { write(a.l.Warn(), msg, args) }
func (a *zerologAdapter) Error(msg string, args ...any) { write(a.l.Error(), msg, args) }

// write turns slog-style key/value pairs into zerolog fields. A key that is
// not a string, or a trailing value without a key, is logged under "!BADKEY".
func write(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || i+1 == len(args) {
			e = e.Interface("!BADKEY", args[i])
			i--
			continue
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
