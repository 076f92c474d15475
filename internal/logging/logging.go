// Package logging builds the process logger and carries it through
// context.Context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type key struct{}

var loggerKey = key{}

// New returns a logger writing text lines to w at the named level.
func New(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:      tty,
		DisableColors:    !tty,
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05",
		DisableTimestamp: !tty && lvl < logrus.DebugLevel,
	})
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func WithLogger(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey, e)
}

// FromContext returns the logger stored in ctx, or a discarding one.
func FromContext(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(Discard())
}
