// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing JSON to w. In the "dev" environment
// the output is switched to the human-readable console writer and the level
// is lowered to debug. Components receive sub-loggers via With().
func New(w io.Writer, env string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := zerolog.InfoLevel
	if strings.EqualFold(env, "dev") {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
