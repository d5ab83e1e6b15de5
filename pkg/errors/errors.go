// Package errors wraps github.com/pkg/errors and adds reporting variants.
//
// Every "...AndReport" constructor builds the error exactly like its plain
// counterpart and then hands it to the registered reporters (see reporter.go).
// Reporting is skipped when the DEBUG environment variable is set.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the supplied message and a stack trace.
func New(message string) error {
	return pkgerrors.New(message)
}

// NewWithReport is New followed by a report.
func NewWithReport(message string) error {
	err := pkgerrors.New(message)
	report(err)
	return err
}

// Errorf formats according to a format specifier and records the stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// ErrorfAndReport is Errorf followed by a report.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := pkgerrors.Errorf(format, args...)
	report(err)
	return err
}

// Wrap annotates err with message. A nil err yields nil.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message. A nil err yields nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// WrapAndReport is Wrap followed by a report.
func WrapAndReport(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrap(err, message)
	report(wrapped)
	return wrapped
}

// WithStack annotates err with a stack trace at the point it was called.
func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

// Cause returns the innermost error that does not implement causer.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

type stack []uintptr

const maxStackDepth = 32

// callers records the stack of the goroutine calling into this package,
// skipping runtime.Callers, callers itself and the reporter frame.
func callers() stack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[0:n]
}

// fullStack renders one "function file:line" entry per frame, dropping
// runtime internals.
func (s stack) fullStack() []string {
	frames := runtime.CallersFrames(s)
	out := make([]string, 0, len(s))
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return out
}

// key picks the frame used to group repeated reports. It falls back to the
// deepest available frame when the stack is shorter than expected.
func (s stack) key(depth int) string {
	full := s.fullStack()
	if len(full) == 0 {
		return ""
	}
	if depth >= len(full) {
		depth = len(full) - 1
	}
	return full[depth]
}
