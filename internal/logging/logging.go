// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the given level. A terminal gets the
// console writer, anything else gets JSON lines.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Nop is a disabled logger for tests and quiet commands.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// PebbleLogger adapts zerolog to the pebble Logger interface.
type PebbleLogger struct {
	Logger zerolog.Logger
}

func (l PebbleLogger) Infof(format string, args ...interface{}) {
	l.Logger.Debug().Msgf("[pebble] "+format, args...)
}

func (l PebbleLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msgf("[pebble] "+format, args...)
}

func (l PebbleLogger) Fatalf(format string, args ...interface{}) {
	l.Logger.Fatal().Msgf("[pebble] "+format, args...)
}
