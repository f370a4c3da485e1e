// Package logger provides the process-wide sugared zap logger.
package logger

import "go.uber.org/zap"

var sugar *zap.SugaredLogger

// Get returns the process-wide logger, constructing a development logger
// the first time it is called.
func Get() *zap.SugaredLogger {
	if sugar == nil {
		l, _ := zap.NewDevelopment()
		sugar = l.Sugar()
	}
	return sugar
}

// Init replaces the process-wide logger with one built from the given level.
// level is one of "debug", "info", "warn", "error"; anything else keeps the
// development defaults.
func Init(level string) error {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	sugar = l.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
