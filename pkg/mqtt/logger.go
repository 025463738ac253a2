package mqtt

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/nodeagent/pkg/log"
)

// pahoLogger bridges the paho log.Logger interface onto pkg/log.
type pahoLogger struct {
	logger log.Logger
	errors bool
}

func newPahoLogger(name string, errors bool) *pahoLogger {
	return &pahoLogger{logger: log.WithName(name), errors: errors}
}

func (l *pahoLogger) Println(v ...any) {
	l.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l *pahoLogger) Printf(format string, v ...any) {
	l.emit(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (l *pahoLogger) emit(msg string) {
	if l.errors {
		l.logger.Warn(msg)
		return
	}
	l.logger.Debug(msg)
}
