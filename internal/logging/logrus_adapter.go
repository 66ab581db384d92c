package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"fjacquet/ledger-sync/internal/redact"
)

// LogrusAdapter adapts logrus.Logger to implement our Logger interface.
type LogrusAdapter struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrusAdapter creates a LogrusAdapter with the given level ("debug", "info",
// "warn", "error") and format ("json" or "text"). Output passes through a
// RedactingFormatter.
func NewLogrusAdapter(level, format string) Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	var inner logrus.Formatter
	if format == "json" {
		inner = &logrus.JSONFormatter{}
	} else {
		inner = &logrus.TextFormatter{FullTimestamp: true}
	}
	logger.SetFormatter(&RedactingFormatter{Inner: inner})

	return &LogrusAdapter{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

// NewLogrusAdapterFromLogger wraps an existing logrus.Logger.
func NewLogrusAdapterFromLogger(logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusAdapter{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

func (l *LogrusAdapter) Debug(msg string, fields ...Field) {
	l.entry.WithFields(convertFields(fields)).Debug(msg)
}

func (l *LogrusAdapter) Info(msg string, fields ...Field) {
	l.entry.WithFields(convertFields(fields)).Info(msg)
}

func (l *LogrusAdapter) Warn(msg string, fields ...Field) {
	l.entry.WithFields(convertFields(fields)).Warn(msg)
}

func (l *LogrusAdapter) Error(msg string, fields ...Field) {
	l.entry.WithFields(convertFields(fields)).Error(msg)
}

func (l *LogrusAdapter) WithError(err error) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithError(err)}
}

func (l *LogrusAdapter) WithField(key string, value interface{}) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithField(key, value)}
}

func (l *LogrusAdapter) WithFields(fields ...Field) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithFields(convertFields(fields))}
}

func (l *LogrusAdapter) Fatal(msg string, fields ...Field) {
	l.entry.WithFields(convertFields(fields)).Fatal(msg)
}

func (l *LogrusAdapter) Fatalf(msg string, args ...interface{}) {
	l.entry.Fatalf(msg, args...)
}

func convertFields(fields []Field) logrus.Fields {
	logrusFields := make(logrus.Fields, len(fields))
	for _, field := range fields {
		logrusFields[field.Key] = field.Value
	}
	return logrusFields
}

// RedactingFormatter scrubs secrets from the message and string-like fields
// before delegating to Inner.
type RedactingFormatter struct {
	Inner logrus.Formatter
}

// Format implements logrus.Formatter.
func (f *RedactingFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	clean := entry.Dup()
	clean.Level = entry.Level
	clean.Caller = entry.Caller
	clean.Message = redact.String(entry.Message)
	for k, v := range clean.Data {
		switch val := v.(type) {
		case string:
			clean.Data[k] = redact.String(val)
		case error:
			clean.Data[k] = redact.String(val.Error())
		case fmt.Stringer:
			clean.Data[k] = redact.String(val.String())
		}
	}
	return f.Inner.Format(clean)
}
