// Package debug builds the process logger and offers cheap debug helpers.
//
// Debug logging is enabled by setting the UIKIT_DEBUG environment variable:
//
//	UIKIT_DEBUG=1 uikit-tree export
//
// When enabled, debug messages go to stderr through a zerolog console
// writer. The TUI owns the terminal, so it logs to a file instead (see
// Setup). When disabled, the helpers return immediately.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvVar turns on debug logging.
const EnvVar = "UIKIT_DEBUG"

var (
	enabled atomic.Bool
	logger  atomic.Pointer[zerolog.Logger]
)

func init() {
	if os.Getenv(EnvVar) != "" {
		enabled.Store(true)
	}
	l := New(os.Stderr, true)
	logger.Store(&l)
}

// New returns a logger writing to w. A console writer is used when pretty is
// set, JSON lines otherwise. The level is Debug when debugging is enabled
// and Warn otherwise.
func New(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	level := zerolog.WarnLevel
	if enabled.Load() {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Setup installs the process logger and returns it together with a close
// function. With a logFile the output goes there as JSON lines; otherwise to
// stderr. The logger also becomes zerolog's global log.Logger, which stores
// fall back to.
func Setup(logFile string) (zerolog.Logger, func() error, error) {
	closeFn := func() error { return nil }
	l := New(os.Stderr, true)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("opening log file: %w", err)
		}
		l = New(f, false)
		closeFn = f.Close
	}
	logger.Store(&l)
	log.Logger = l
	return l, closeFn, nil
}

// Logger returns the process logger.
func Logger() zerolog.Logger {
	return *logger.Load()
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled switches debug logging at runtime and rebuilds the stderr
// logger at the matching level.
func SetEnabled(e bool) {
	enabled.Store(e)
	l := Logger().Level(zerolog.WarnLevel)
	if e {
		l = l.Level(zerolog.DebugLevel)
	}
	logger.Store(&l)
}

// Log writes a printf-style debug message.
func Log(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// LogTiming writes a timing message.
func LogTiming(name string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	l := Logger()
	l.Debug().Str("op", name).Dur("took", d).Msg("timing")
}

// LogEnterExit logs entry and exit with timing:
//
//	defer debug.LogEnterExit("export")()
func LogEnterExit(name string) func() {
	if !enabled.Load() {
		return func() {}
	}
	l := Logger()
	l.Debug().Str("op", name).Msg("enter")
	start := time.Now()
	return func() {
		l.Debug().Str("op", name).Dur("took", time.Since(start)).Msg("exit")
	}
}

// Dump logs a value with its type.
func Dump(name string, v any) {
	if !enabled.Load() {
		return
	}
	l := Logger()
	l.Debug().Str("name", name).Str("type", fmt.Sprintf("%T", v)).Msgf("%+v", v)
}
