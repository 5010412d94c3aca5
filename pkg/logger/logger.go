// Package logger provides the process-wide zap logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds and installs the global logger. Production gets sampled JSON
// output; anything else a human-readable development logger.
func Init(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	mu.Lock()
	global = l
	mu.Unlock()
	return l, nil
}

// Get returns the global logger. Before Init it is a no-op logger, so library
// code can log unconditionally.
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = global.Sync()
}
