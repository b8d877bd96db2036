package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LogOptions struct {
	Level  string
	Pretty bool
	// File, when set, receives a rotated JSON copy of every log line.
	File string
}

// NewLogger builds the service logger and installs it as the zerolog global.
// The returned closer releases the rotated file, if any.
func NewLogger(opts LogOptions) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(parseLevel(opts.Level))

	var console io.Writer = os.Stdout
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	out := console
	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rotated)
		closer = rotated
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "mascot").Logger()
	log.Logger = logger
	return logger, closer
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
