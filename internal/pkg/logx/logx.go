/*
Package logx is the server's logging front end over zerolog.

InitGlobalLogger picks the output once at startup. Packages with a long-lived
loop (hub, sessions) take a Component logger and use zerolog's event API
directly, while handlers use the key/value helpers below.
*/
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger configures the process-wide logger. Development gets colored
// console output on stderr at debug level; everything else gets JSON lines on
// stdout at info level. Entries carry a unix timestamp and the calling line.
func InitGlobalLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if isDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	log.Logger = logger.With().Caller().Logger()
}

// Logger exposes the process-wide logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged component=name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// pairs drops fields that do not form key/value pairs; zerolog panics on them.
func pairs(level zerolog.Level, fields []any) []any {
	if len(fields)%2 == 0 {
		return fields
	}
	Logger().Warn().
		Int("fields_count", len(fields)).
		Str("log_level", level.String()).
		Msgf("odd number of log fields, dropped: %v", fields)
	return nil
}

// write sends one entry. Skipping two frames attributes it to the helper's caller.
func write(ev *zerolog.Event, level zerolog.Level, msg string, fields []any) {
	ev.Fields(pairs(level, fields)).
		CallerSkipFrame(2).
		Msg(msg)
}

func Debug(msg string, fields ...any) {
	write(Logger().Debug(), zerolog.DebugLevel, msg, fields)
}

func Info(msg string, fields ...any) {
	write(Logger().Info(), zerolog.InfoLevel, msg, fields)
}

func Warn(msg string, fields ...any) {
	write(Logger().Warn(), zerolog.WarnLevel, msg, fields)
}

// Error logs msg with err attached.
func Error(err error, msg string, fields ...any) {
	write(Logger().Error().Err(err), zerolog.ErrorLevel, msg, fields)
}

// Fatal logs like Error and exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	write(Logger().Fatal().Err(err), zerolog.FatalLevel, msg, fields)
}
