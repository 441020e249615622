// Package log holds the process-wide zap logger used by energymonitor.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

var (
	sugar *zap.SugaredLogger
	base  *zap.Logger
)

// Init builds the package logger. Debug mode switches to zap's development
// config, which logs at debug level with human-readable output.
func Init(debug bool) error {
	var (
		zapLogger *zap.Logger
		err       error
	)

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	base = zapLogger
	sugar = zapLogger.Sugar()
	return nil
}

func ensure() {
	if base == nil {
		base, _ = zap.NewProduction(zap.AddCallerSkip(1))
		sugar = base.Sugar()
	}
}

// GetZapLogger returns the unsugared logger, for bridges such as GORM's logger.
func GetZapLogger() *zap.Logger {
	ensure()
	return base
}

// GetSugaredLogger returns the package logger.
func GetSugaredLogger() *zap.SugaredLogger {
	ensure()
	return sugar
}

// Named returns a child logger tagged with a component name. Components take
// this in their constructors rather than calling the package functions.
func Named(component string) *zap.SugaredLogger {
	ensure()
	return base.WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(component)
}

// Sync flushes any buffered log entries
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugf(template string, args ...interface{}) {
	ensure()
	sugar.Debugf(template, args...)
}

func Info(args ...interface{}) {
	ensure()
	sugar.Info(args...)
}

func Infof(template string, args ...interface{}) {
	ensure()
	sugar.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	ensure()
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	ensure()
	sugar.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	ensure()
	sugar.Errorf(template, args...)
}

func Fatalf(template string, args ...interface{}) {
	ensure()
	sugar.Fatalf(template, args...)
	os.Exit(1)
}
