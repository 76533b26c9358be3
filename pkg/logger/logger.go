package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Package-level leveled logger used by the gateway. Backed by zerolog so the
// output is structured JSON in deployments while LOG_PRETTY=true switches to a
// human-readable console writer for local development.

var (
	mu  sync.RWMutex
	log zerolog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init configures the global log level (case-insensitive: debug, info, warn,
// error, fatal) and output format. Call early during startup. Default is Info.
func Init(level string, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(level)
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(lvl).With().Timestamp().Logger()
		return
	}
	log = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func parseLevel(l string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
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

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debugf(format string, v ...interface{}) { l := current(); l.Debug().Msgf(format, v...) }
func Infof(format string, v ...interface{})  { l := current(); l.Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { l := current(); l.Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { l := current(); l.Error().Msgf(format, v...) }

// Fatalf logs at fatal level and exits the process.
func Fatalf(format string, v ...interface{}) { l := current(); l.Fatal().Msgf(format, v...) }

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	return current().GetLevel().String()
}
