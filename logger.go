// Package modforge manages the lifecycle of application modules: vertical
// feature slices discovered on the filesystem, each carrying a manifest that
// declares its identity, version and dependencies.
//
// The package covers the full path from discovery to activation:
//
//	sys := modforge.NewSystem(cfg, nil)
//	if err := sys.Manager.Install(ctx, "billing"); err != nil { ... }
//	if err := sys.Manager.Enable(ctx, "billing"); err != nil { ... }
//	result, err := sys.LoadAtStartup(ctx)
//
// Discovered modules move through a persisted state machine (not installed,
// installed, enabled, disabled), a deterministic dependency graph with wave
// partitioning is compiled into a cached artifact, and a parallel loader
// activates modules wave by wave at process start.
package modforge

import "log/slog"

// Logger defines the interface for structured logging used throughout the
// package. Messages carry variadic key-value pairs, compatible with slog,
// zap's sugared logger and similar libraries.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog logger. Passing nil uses
// slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
