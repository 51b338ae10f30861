package blueprint

// Logger defines the interface for framework logging.
// Every lifecycle transition, manager mutation and contained event handler
// failure is reported through it using key-value pairs:
//
//	logger.Info("Module registered", "module", "safety", "blueprint", "bp-1")
//
// The interface is satisfied by thin adapters over slog, zap, logrus and
// others; see the logging package for the zap adapter.
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

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

// sourceLogger prefixes every record with a source tag.
type sourceLogger struct {
	next   Logger
	source string
}

// WithSource returns a logger that adds "source", source to every record.
// A nil logger yields a NopLogger.
func WithSource(logger Logger, source string) Logger {
	if logger == nil {
		return NopLogger{}
	}
	if sl, ok := logger.(*sourceLogger); ok {
		logger = sl.next
	}
	return &sourceLogger{next: logger, source: source}
}

func (l *sourceLogger) with(args []any) []any {
	out := make([]any, 0, len(args)+2)
	out = append(out, "source", l.source)
	return append(out, args...)
}

func (l *sourceLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.with(args)...) }
func (l *sourceLogger) Error(msg string, args ...any) { l.next.Error(msg, l.with(args)...) }
func (l *sourceLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.with(args)...) }
func (l *sourceLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.with(args)...) }
