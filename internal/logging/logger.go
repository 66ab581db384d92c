// Package logging decouples the pipeline from the logging framework. Every component
// receives a Logger; production wiring uses logrus behind a redacting formatter.
package logging

// Logger defines structured logging for the application.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithError returns a new logger with an error field attached
	WithError(err error) Logger
	// WithField returns a new logger with a single field attached
	WithField(key string, value interface{}) Logger
	// WithFields returns a new logger with multiple fields attached
	WithFields(fields ...Field) Logger

	// Fatal logs and exits the program
	Fatal(msg string, fields ...Field)
	Fatalf(msg string, args ...interface{})
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
