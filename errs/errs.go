// Package errs defines the three error classes the engine distinguishes
// when deciding how to report a failure and what exit code to return:
// user mistakes, recoverable system conditions, and "this should never
// happen" program-invariant violations.
//
// Every error carries a typed class so the outermost handler (in
// cmd/variantcaller) can choose an exit code and a rendering instead of
// dumping a Go stack trace at the user.
package errs

import "fmt"

// Class distinguishes how an error should be reported and exited.
type Class int

const (
	// ClassUser marks a mistake in how the tool was invoked or configured
	// (bad flag combination, missing file, malformed pedigree): reported
	// tersely, no stack trace, exit code 1.
	ClassUser Class = iota
	// ClassSystem marks a recoverable failure in the environment (disk
	// full, network read truncated): reported with the underlying cause,
	// exit code 2.
	ClassSystem
	// ClassProgram marks an invariant violation that indicates a bug in
	// the engine itself: reported as where/why, no stack trace, exit code 3.
	ClassProgram
)

// Error is the engine's uniform error type: Where names the component
// that raised it, Why is the human-readable cause, Help (optional)
// suggests a fix, and Cause (optional) wraps an underlying error.
type Error struct {
	Class Class
	Where string
	Why   string
	Help  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Where, e.Why, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Where, e.Why)
}

func (e *Error) Unwrap() error { return e.Cause }

// User constructs a ClassUser error.
func User(where, why string) *Error { return &Error{Class: ClassUser, Where: where, Why: why} }

// UserWithHelp constructs a ClassUser error carrying a suggested fix.
func UserWithHelp(where, why, help string) *Error {
	return &Error{Class: ClassUser, Where: where, Why: why, Help: help}
}

// System wraps a recoverable system-level error.
func System(where, why string, cause error) *Error {
	return &Error{Class: ClassSystem, Where: where, Why: why, Cause: cause}
}

// Program marks an invariant violation; callers typically pass this
// straight to panic rather than returning it, since "this should never
// happen" conditions have no recovery path short of the top level.
func Program(where, why string) *Error { return &Error{Class: ClassProgram, Where: where, Why: why} }

// ExitCode maps an error's Class to the process exit code
// cmd/variantcaller returns.
func ExitCode(err error) int {
	e, ok := err.(*Error)
	if !ok {
		return 1
	}
	switch e.Class {
	case ClassUser:
		return 1
	case ClassSystem:
		return 2
	case ClassProgram:
		return 3
	default:
		return 1
	}
}

// Render formats err for display: user errors are terse (plus Help, if
// present); system and program errors include the underlying cause.
func Render(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	switch e.Class {
	case ClassUser:
		if e.Help != "" {
			return fmt.Sprintf("%s: %s\n%s", e.Where, e.Why, e.Help)
		}
		return fmt.Sprintf("%s: %s", e.Where, e.Why)
	default:
		return e.Error()
	}
}
