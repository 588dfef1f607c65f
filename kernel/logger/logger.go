// Package logger provides the structured logging interface consumed by
// every kernel subsystem, in the shape the teacher's shared/logger package
// is called with throughout lxd/daemon.go, lxd/csrf.go and
// lxd/storage/backend_lxd.go: a short message plus an optional Ctx map of
// structured fields. Backed by logrus.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Ctx is a bag of structured logging fields, e.g.
// logger.Warn("failed to deliver signal", logger.Ctx{"pid": pid, "sig": sig}).
type Ctx map[string]any

// Logger is the interface every kernel subsystem is constructed with.
type Logger interface {
	Debug(msg string, ctx ...Ctx)
	Info(msg string, ctx ...Ctx)
	Warn(msg string, ctx ...Ctx)
	Error(msg string, ctx ...Ctx)

	// AddContext returns a derived Logger that always includes the given
	// fields, the way the teacher's per-backend b.logger is constructed
	// once with a {"driver": ..., "pool": ...} context.
	AddContext(ctx Ctx) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New constructs the default Logger, writing to stderr. jsonFormat selects
// JSON output (suitable for a supervised/boot-logged process) over the
// human-readable text formatter.
func New(jsonFormat bool) Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)

	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return nil
	}

	f := make(logrus.Fields, len(ctx[0]))
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}

	return f
}

func (l *logrusLogger) Debug(msg string, ctx ...Ctx) { l.entry.WithFields(l.fields(ctx)).Debug(msg) }
func (l *logrusLogger) Info(msg string, ctx ...Ctx)  { l.entry.WithFields(l.fields(ctx)).Info(msg) }
func (l *logrusLogger) Warn(msg string, ctx ...Ctx)  { l.entry.WithFields(l.fields(ctx)).Warn(msg) }
func (l *logrusLogger) Error(msg string, ctx ...Ctx) { l.entry.WithFields(l.fields(ctx)).Error(msg) }

func (l *logrusLogger) AddContext(ctx Ctx) Logger {
	return &logrusLogger{entry: l.entry.WithFields(l.fields([]Ctx{ctx}))}
}

// Nop is a Logger that discards everything, used by package-level tests
// that don't want to construct a real logrus backend.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Ctx)      {}
func (nopLogger) Info(string, ...Ctx)       {}
func (nopLogger) Warn(string, ...Ctx)       {}
func (nopLogger) Error(string, ...Ctx)      {}
func (n nopLogger) AddContext(Ctx) Logger   { return n }
