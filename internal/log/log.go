// Package log holds the process-wide zap logger. Components receive a
// *zap.SugaredLogger explicitly; this package only owns construction and the
// handful of calls made before one exists.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

var (
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// Init builds the process logger. Debug mode uses zap's development
// encoder and enables debug level.
func Init(debug bool) error {
	build := zap.NewProduction
	if debug {
		build = zap.NewDevelopment
	}
	l, err := build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}
	base, sugar = l, l.Sugar()
	return nil
}

func ensure() {
	if base == nil {
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
		sugar = base.Sugar()
	}
}

// GetZapLogger returns the unsugared logger, for libraries such as GORM
// that want a *zap.Logger.
func GetZapLogger() *zap.Logger {
	ensure()
	return base
}

// GetSugaredLogger returns the process logger, falling back to a production
// logger when Init has not run.
func GetSugaredLogger() *zap.SugaredLogger {
	ensure()
	return sugar
}

// Sync flushes buffered entries.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Warnf(template string, args ...any) {
	GetSugaredLogger().Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	GetSugaredLogger().Errorf(template, args...)
}
