package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds a structured logger writing to w. Unknown levels fall back
// to info. pretty selects the human-readable console writer.
func NewLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// InitLogger builds the process logger on stderr and installs it as the
// zerolog global logger.
func InitLogger(level string, pretty bool) zerolog.Logger {
	logger := NewLogger(os.Stderr, level, pretty)
	log.Logger = logger
	return logger
}
