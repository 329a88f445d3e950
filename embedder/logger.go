package embedder

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the package logger. It is a no-op logger until SetLogger
// is called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// SetLogger installs l as the package logger. A nil l restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}
