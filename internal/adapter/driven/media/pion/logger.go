package pion

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging into zerolog.
type loggerFactory struct {
	level zerolog.Level
}

func newLoggerFactory(level zerolog.Level) logging.LoggerFactory {
	return loggerFactory{level: level}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{
		l: log.With().Str("component", "pion").Str("scope", scope).Logger().Level(f.level),
	}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (l leveledLogger) Trace(msg string) { l.l.Trace().Msg(msg) }
func (l leveledLogger) Tracef(format string, args ...interface{}) {
	l.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l leveledLogger) Debug(msg string) { l.l.Debug().Msg(msg) }
func (l leveledLogger) Debugf(format string, args ...interface{}) {
	l.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l leveledLogger) Info(msg string) { l.l.Info().Msg(msg) }
func (l leveledLogger) Infof(format string, args ...interface{}) {
	l.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (l leveledLogger) Warn(msg string) { l.l.Warn().Msg(msg) }
func (l leveledLogger) Warnf(format string, args ...interface{}) {
	l.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l leveledLogger) Error(msg string) { l.l.Error().Msg(msg) }
func (l leveledLogger) Errorf(format string, args ...interface{}) {
	l.l.Error().Msg(fmt.Sprintf(format, args...))
}
