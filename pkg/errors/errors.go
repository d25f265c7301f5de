// Package errors provides a thin wrapper around github.com/pkg/errors
// so callers get stack traces and consistent formatting helpers without
// importing two errors packages.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// New returns an error with a stack trace. The message is treated as a
// format string when arguments are supplied.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return errors.Errorf(format, args...)
}

// Wrap annotates err with a message and a stack trace. The message is
// treated as a format string when arguments are supplied. Returns nil
// if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.Wrap(err, format)
	}
	return errors.Wrapf(err, format, args...)
}

// WithStack annotates err with a stack trace. Returns nil if err is nil.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
