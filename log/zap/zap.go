// Package zap adapts a *zap.Logger to asidecache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/asidecache"
)

var _ asidecache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "asidecache" so cache events are easy to filter.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("asidecache")}
}

func (z Logger) Debug(msg string, f asidecache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f asidecache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f asidecache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f asidecache.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; errors keep their zap error encoding.
func fields(f asidecache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case []string:
			out = append(out, zap.Strings(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
