package ppool

import (
	"io"
	"log/slog"
)

// Log is the package-level logger. It defaults to a discard handler so
// the library is silent unless an embedding application installs its own
// handler, e.g.:
//
//	ppool.Log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
var Log = slog.New(slog.NewTextHandler(io.Discard, nil))

// logger returns a contextual child logger scoped to one component
// instance, so log lines can be traced back to the source/record/probe
// that emitted them.
func logger(component, id string, args ...any) *slog.Logger {
	base := Log.With(slog.String("component", component), slog.String("id", id))
	if len(args) > 0 {
		return base.With(args...)
	}
	return base
}
