// Package logrus adapts a *logrus.Entry to asidecache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/asidecache"
)

var _ asidecache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every entry with component=asidecache.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: l.WithField("component", "asidecache")}
}

func (l Logger) Debug(msg string, f asidecache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f asidecache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f asidecache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f asidecache.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' own error key.
func (l Logger) with(f asidecache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
