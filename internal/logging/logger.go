// Package logging supplies the single abstract logger sink every
// packer component receives at construction. Nothing in this module
// ever reaches for a package-level logger.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the sink every component is constructed with. It mirrors
// zap's leveled, structured-field call shape so the production
// implementation is a thin pass-through.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a production Logger. verbose selects development mode
// (human-readable, debug-level) over production mode (JSON,
// info-level).
func New(verbose bool) (Logger, error) {
	var z *zap.Logger
	var err error
	if verbose {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Sync() error                           { return l.z.Sync() }

// noop discards everything; used by tests and by any component that
// receives no logger.
type noop struct{}

// NewNoop returns a Logger that discards all output.
func NewNoop() Logger { return noop{} }

func (noop) Debug(string, ...zap.Field) {}
func (noop) Info(string, ...zap.Field)  {}
func (noop) Warn(string, ...zap.Field)  {}
func (noop) Error(string, ...zap.Field) {}
func (noop) Sync() error                { return nil }
