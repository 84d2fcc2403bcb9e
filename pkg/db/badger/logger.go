package badger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// zerologAdapter routes badger's internal logging into a zerolog logger.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a zerologAdapter) Errorf(format string, args ...interface{}) {
	a.l.Error().Msg(trim(format, args))
}

func (a zerologAdapter) Warningf(format string, args ...interface{}) {
	a.l.Warn().Msg(trim(format, args))
}

func (a zerologAdapter) Infof(format string, args ...interface{}) {
	a.l.Debug().Msg(trim(format, args))
}

func (a zerologAdapter) Debugf(format string, args ...interface{}) {
	a.l.Trace().Msg(trim(format, args))
}

func trim(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
