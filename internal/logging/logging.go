// Package logging wires a single zap logger through every subsystem
// constructor, the way iamNilotpal-ignite's pkg/ignite threads a logger into
// its engine/storage/index constructors, replacing the teacher's bare
// log.Printf calls.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the structured logger handed to every component constructor.
type Logger = zap.SugaredLogger

// New builds a production logger at the given level name
// ("debug"|"info"|"warn"|"error"). Unknown level names default to "info".
func New(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	var zl zap.AtomicLevel
	if err := zl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zl
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}

// Named returns a child logger tagged with component, e.g. Named(l, "router").
func Named(l *Logger, component string) *Logger {
	return l.Named(component)
}
