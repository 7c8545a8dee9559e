package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus so call sites keep the Printf/Errorf surface used
// throughout the handlers and stores.
type Logger struct {
	l *logrus.Logger
}

func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if os.Getenv("WIKIADM_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{l: l}
}

func (lg *Logger) Printf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Infof(format, args...)
}

func (lg *Logger) Errorf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Errorf(format, args...)
}

func (lg *Logger) Debugf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Debugf(format, args...)
}
