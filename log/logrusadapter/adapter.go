// Package logrusadapter provides a logger that writes to a github.com/sirupsen/logrus.Logger.
package logrusadapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pgkit/pgsql"
)

type Logger struct {
	l logrus.FieldLogger
}

func NewLogger(l logrus.FieldLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgsql.LogLevel, msg string, data map[string]interface{}) {
	var logger logrus.FieldLogger
	if data != nil {
		logger = l.l.WithFields(data)
	} else {
		logger = l.l
	}

	switch level {
	case pgsql.LogLevelTrace:
		logger.WithField("PGSQL_LOG_LEVEL", level).Debug(msg)
	case pgsql.LogLevelDebug:
		logger.Debug(msg)
	case pgsql.LogLevelInfo:
		logger.Info(msg)
	case pgsql.LogLevelWarn:
		logger.Warn(msg)
	case pgsql.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("INVALID_PGSQL_LOG_LEVEL", level).Error(msg)
	}
}
