package logger

// NoopLogger discards everything. Useful in tests and as a safe default.
type NoopLogger struct{}

// NewNoop creates a logger that drops all messages.
func NewNoop() Interface {
	return &NoopLogger{}
}

// Debug does nothing.
func (l *NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (l *NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (l *NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (l *NoopLogger) Error(_ string, _ ...any) {}

// Fatal does nothing.
func (l *NoopLogger) Fatal(_ string, _ ...any) {}

// With returns the same no-op logger.
func (l *NoopLogger) With(_ ...any) Interface { return l }
