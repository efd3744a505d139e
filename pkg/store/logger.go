package store

import (
	"github.com/roo-code/conversation-memory/pkg/core"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
)

// loggerAdapter satisfies core.Logger by delegating to a memmodel.Logger.
// The two interfaces are structurally identical except that each one's
// With method returns its own package's Logger type, which keeps Go from
// treating them as the same interface.
type loggerAdapter struct {
	inner memmodel.Logger
}

func adaptLogger(l memmodel.Logger) core.Logger {
	if l == nil {
		return core.NopLogger()
	}
	return loggerAdapter{inner: l}
}

func (a loggerAdapter) Debug(msg string, keyvals ...any) { a.inner.Debug(msg, keyvals...) }
func (a loggerAdapter) Info(msg string, keyvals ...any)  { a.inner.Info(msg, keyvals...) }
func (a loggerAdapter) Warn(msg string, keyvals ...any)  { a.inner.Warn(msg, keyvals...) }
func (a loggerAdapter) Error(msg string, keyvals ...any) { a.inner.Error(msg, keyvals...) }
func (a loggerAdapter) With(keyvals ...any) core.Logger {
	return loggerAdapter{inner: a.inner.With(keyvals...)}
}
