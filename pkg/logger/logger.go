package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log stays silent until Init is called, which keeps tests quiet.
var Log = zerolog.Nop()

// Init configures the global logger. Development gets the console writer,
// every other environment gets JSON lines on stdout.
func Init(env, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if env == "development" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			Level(lvl).
			With().
			Timestamp().
			Caller().
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "messaging").
		Logger()
}

func Info() *zerolog.Event {
	return Log.Info()
}

func Error() *zerolog.Event {
	return Log.Error()
}

func Warn() *zerolog.Event {
	return Log.Warn()
}

func Debug() *zerolog.Event {
	return Log.Debug()
}

func Fatal() *zerolog.Event {
	return Log.Fatal()
}
