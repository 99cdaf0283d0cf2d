package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// loggerFactory routes pion's internal logging into zerolog.
type loggerFactory struct {
	log zerolog.Logger
}

func newLoggerFactory(log zerolog.Logger) logging.LoggerFactory {
	return loggerFactory{log: log}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveled{log: f.log.With().Str("scope", scope).Logger()}
}

type leveled struct {
	log zerolog.Logger
}

func (l leveled) Trace(msg string) { l.log.Trace().Msg(msg) }
func (l leveled) Tracef(format string, args ...any) {
	l.log.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l leveled) Debug(msg string) { l.log.Debug().Msg(msg) }
func (l leveled) Debugf(format string, args ...any) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l leveled) Info(msg string) { l.log.Info().Msg(msg) }
func (l leveled) Infof(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}
func (l leveled) Warn(msg string) { l.log.Warn().Msg(msg) }
func (l leveled) Warnf(format string, args ...any) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l leveled) Error(msg string) { l.log.Error().Msg(msg) }
func (l leveled) Errorf(format string, args ...any) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}
