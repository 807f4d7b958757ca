// Package stdlogger exposes the global zerolog logger through the printf style
// logger interfaces of libraries such as gorm.
package stdlogger

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Logger writes printf style messages to the global zerolog logger.
type Logger struct {
	component string
}

// New returns a Logger tagging every line with component when it is set.
func New(component ...string) *Logger {
	l := &Logger{}
	if len(component) > 0 {
		l.component = component[0]
	}

	return l
}

// Printf logs at info level. It satisfies gorm's logger.Writer.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	log.Debug().Str("component", l.component).Msg(fmt.Sprintf(format, args...))
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	log.Info().Str("component", l.component).Msg(fmt.Sprintf(format, args...))
}

// Warningf logs at warn level.
func (l *Logger) Warningf(format string, args ...any) {
	log.Warn().Str("component", l.component).Msg(fmt.Sprintf(format, args...))
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	log.Error().Str("component", l.component).Msg(fmt.Sprintf(format, args...))
}
