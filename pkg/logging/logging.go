package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// debugMode gates per-line trace output from the trigger pipeline.
// Set via --debug, TF_DEBUG=true, or at runtime.
var debugMode atomic.Bool

// SetupLogger configures the global logger for the given verbosity and
// writes console-formatted output to w (stderr when nil).
func SetupLogger(verbosity int, w io.Writer) {
	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
	}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	log.Debug().Int("verbosity", verbosity).Msg("Logger initialized")
}

// GetLogger returns a logger tagged with the given component name.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// SetDebug enables or disables debug tracing.
func SetDebug(on bool) {
	debugMode.Store(on)
	if on {
		log.Info().Msg("Debug tracing enabled")
	}
}

// IsDebug returns whether debug tracing is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Debug returns a debug-level event for component when debug tracing is on,
// and a disabled event otherwise. Calling Msg on a disabled event is a no-op.
func Debug(component string) *zerolog.Event {
	if !debugMode.Load() {
		return nil
	}
	l := GetLogger(component)
	return l.Debug()
}
