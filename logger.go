package mandelbrot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/mandelbrot/internal/compute"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

// loggerSinks receive every logger passed to SetLogger. Backends append
// their package setters at init.
var (
	sinksMu     sync.Mutex
	loggerSinks = []func(*slog.Logger){compute.SetLogger}
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for the renderer and its backends.
// By default nothing is logged. Pass nil to restore silence.
//
// Log levels:
//   - [slog.LevelDebug]: plan, buffer sizes, dispatch grids, readback steps
//   - [slog.LevelInfo]: adapter selection, render summary
//   - [slog.LevelWarn]: CPU fallback, resource release errors
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.Lock()
	defer sinksMu.Unlock()
	for _, set := range loggerSinks {
		set(l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// addLoggerSink registers set and hands it the current logger.
func addLoggerSink(set func(*slog.Logger)) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	loggerSinks = append(loggerSinks, set)
	set(loggerPtr.Load())
}
