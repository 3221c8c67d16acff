// Package logrus adapts a *logrus.Entry to repositorycache.Logger.
//
// Every entry carries component=cache. An error value under the "error" key is
// attached with WithError so hooks and formatters see it as logrus.ErrorKey.
package logrus

import (
	"sort"

	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/sirupsen/logrus"
)

// LogrusLogger writes through E. The zero value is not usable; call New.
type LogrusLogger struct{ E *logrus.Entry }

var _ repositorycache.Logger = LogrusLogger{}

// New wraps l. A nil logger becomes logrus.StandardLogger.
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: l.WithField("component", "cache")}
}

func (l LogrusLogger) Debug(msg string, f repositorycache.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f repositorycache.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f repositorycache.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f repositorycache.Fields) { l.entry(f).Error(msg) }

func (l LogrusLogger) entry(f repositorycache.Fields) *logrus.Entry {
	e := l.E
	if err, ok := f[logrus.ErrorKey].(error); ok {
		e = e.WithError(err)
	}
	if rest := lf(f); len(rest) > 0 {
		e = e.WithFields(rest)
	}
	return e
}

// lf copies fields in key order, leaving out an error already attached by
// entry. The caller's map is never handed to logrus.
func lf(f repositorycache.Fields) logrus.Fields {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(logrus.Fields, len(f))
	for _, k := range keys {
		if _, isErr := f[k].(error); isErr && k == logrus.ErrorKey {
			continue
		}
		out[k] = f[k]
	}
	return out
}
