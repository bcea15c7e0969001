// Package monitor reports the fault modes that have no recovery path: a
// misuse panic recovered at the top of a worker's loop, and a failure of the
// mutex/condvar primitives the blocker depends on. This package exists only
// to make sure such a failure is reported before the process goes down, and
// keeps Sentry itself out of the rest of the codebase's imports.
package monitor

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	sentry "github.com/getsentry/sentry-go"
)

const (
	LevelPanic = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var isOn bool

// InitErrorMonitor initializes Sentry reporting for the running process.
// dsn is read from the SENTRY_DSN environment variable if empty; with no DSN
// configured at all, InitErrorMonitor is a no-op so the module works
// without any external dependency by default.
func InitErrorMonitor(dsn, version string) {
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	if dsn == "" {
		return
	}
	isOn = true
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		TracesSampleRate: 1,
		Release:          version,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	CaptureMessage("Session:Started")
	go monitorRun()
}

// CaptureMessage sends a message to Sentry.
func CaptureMessage(message string) {
	if !isOn || isTest() {
		return
	}
	sentry.CaptureMessage(message)
	defer sentry.Flush(2 * time.Second)
}

// CaptureException sends an error to Sentry. Used by logger.Logger's
// Errorf/Panicf paths, and by the worker loop's top-level recover for a
// misuse panic (an asleep worker calling WorkFound, or an out-of-range
// worker index).
func CaptureException(level int, format string, v ...interface{}) {
	if !isOn || isTest() {
		return
	}
	if level > LevelError {
		return
	}
	err := fmt.Errorf(format, v...)

	sentry.CaptureException(err)
	defer sentry.Flush(2 * time.Second)
}

// monitorRun sends a heartbeat to Sentry periodically so a silent crash
// (an OS-level mutex/condvar failure is treated as process-fatal) shows up
// as a gap rather than nothing at all.
func monitorRun() {
	for i := 0; ; i++ {
		CaptureMessage(fmt.Sprintf("Session:%d", i))
		time.Sleep(24 * time.Hour)
	}
}

// IsOn returns true if the monitor is enabled.
func IsOn() bool {
	return isOn
}

// isTest returns true if execution is part of a test binary.
func isTest() bool {
	return flag.Lookup("test.v") != nil
}

// StartSpan wraps Sentry's own span type to minimize exposure of the sentry
// package elsewhere; it is a secondary, lighter-weight alternative to the
// tracing package's OpenTracing spans, useful when only error-adjacent
// timing is wanted.
func StartSpan(ctx context.Context, txType, txName string) *sentry.Span {
	if !isOn || isTest() {
		return &sentry.Span{}
	}
	return sentry.StartSpan(ctx, txType, sentry.TransactionName(txName))
}

func Finish(span *sentry.Span) {
	if !isOn || isTest() {
		return
	}
	span.Finish()
}
