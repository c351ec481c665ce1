package library

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Logger interface for SQL query logging, workflow outcomes, warnings, and error reporting.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type options struct {
	logger Logger
	now    func() time.Time
	newID  func(prefix string) string
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  newUUIDv7,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Database or LibraryManager.
type Option func(*options)

// WithLogger sets the logger.
//
// Debug level: executed SQL statements
// Info level: issue/return outcomes and migrations
// Warn level: declined issues and duplicate returns
// Error level: failed transactions.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the source of "today" for issue and return dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how missing issue and return identifiers are generated.
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func newUUIDv7(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + id.String()
}
