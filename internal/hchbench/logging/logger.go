// Package logging wraps logrus with a small call shape
// (logger.Info/Warn/InfoX/ErrorX) so call sites can attach structured
// fields without building logrus.Fields by hand.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel configures the global logger's minimum level from a string
// ("debug", "info", "warn", "error"). Unrecognised values are ignored.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(lvl)
}

func Debug(format string, args ...any) { entry().Debug(fmt.Sprintf(format, args...)) }
func Info(format string, args ...any)  { entry().Info(fmt.Sprintf(format, args...)) }
func Warn(format string, args ...any)  { entry().Warn(fmt.Sprintf(format, args...)) }
func Error(format string, args ...any) { entry().Error(fmt.Sprintf(format, args...)) }

// InfoX logs msg verbatim at info level, tagged with a module name and
// key/value pairs attached as structured fields — msg carries no printf
// verbs of its own, e.g. InfoX("scheduler", "parked context", "session", id).
func InfoX(module, msg string, kv ...any) {
	fields(module, kv).Info(msg)
}

// ErrorX logs msg verbatim at error level, tagged with a module name and
// key/value pairs attached as structured fields.
func ErrorX(module, msg string, kv ...any) {
	fields(module, kv).Error(msg)
}

// WarnAutomationLoop logs the scheduler's loop-prevention fallback: a
// rendering was about to be auto-replayed a second time within one
// automation chain, so the driver is consulted instead.
func WarnAutomationLoop(rendering string) {
	fields("scheduler", []any{"rendering", rendering}).Warn("automation loop detected, falling back to driver")
}

func entry() *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return logrus.NewEntry(log)
}

func fields(module string, kv []any) *logrus.Entry {
	e := entry().WithField("module", module)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.WithField(key, kv[i+1])
	}
	return e
}
