package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Log levels accepted by --log-level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	stationLogger *Logger
	once          sync.Once
)

// Get returns the process-wide station logger. The level of the first call wins.
func Get(level string) *Logger {
	once.Do(func() {
		stationLogger = newZapLogger(level)
	})
	return stationLogger
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a logger.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}
