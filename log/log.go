package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so call sites can use log.New directly.
type Logger struct {
	zerolog.Logger
}

// New builds the process root logger. Level falls back to info when the
// provided name does not parse; pretty enables console output for local
// runs.
func New(level string, pretty bool) Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).
		Level(parsed).
		With().
		Timestamp().
		Logger()

	return Logger{Logger: logger}
}

// Nop returns a logger that discards everything; used in tests.
func Nop() Logger {
	return Logger{Logger: zerolog.Nop()}
}
