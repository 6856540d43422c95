package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process-wide root logger. Components should derive their own
// sub-logger via GetForComponent rather than logging through this directly.
var Logger zerolog.Logger

// Initialize configures the root logger. Output is a console writer unless
// LOG_FORMAT=json is set, in which case raw JSON lines go to stdout.
func Initialize(logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var out = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	} else {
		Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Route the zerolog global through the same writer.
	log.Logger = Logger
}

// Get returns the root logger.
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a sub-logger tagged with a component field.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
