// Package reconerr defines the coded error family used across the
// reconciliation pipeline.
//
// Every failure that crosses a component boundary is wrapped in an Error
// carrying a stable code, so callers can branch on the failing phase without
// string matching. Codes are deliberately coarse: they identify which part of
// the pipeline failed, not the precise cause (the wrapped error keeps that).
package reconerr

import (
	"errors"
	"fmt"
)

// Code identifies the failure class of a pipeline error.
type Code string

const (
	// CodeConfiguration covers missing rulesets, empty table sets and
	// unsupported vendors. Nothing has touched a database yet.
	CodeConfiguration Code = "E_CONFIG"
	// CodeConnectivity covers unreachable source/target/landing databases.
	CodeConnectivity Code = "E_CONNECTIVITY"
	// CodeExtraction covers source read and type-mapping failures.
	CodeExtraction Code = "E_EXTRACTION"
	// CodeLoad is raised only when the bulk fast path and the batched
	// fallback both failed for the same staging table.
	CodeLoad Code = "E_LOAD"
	// CodeQuery covers reconciliation SQL failures; for a valid ruleset this
	// indicates a rule/schema mismatch.
	CodeQuery Code = "E_QUERY"
	// CodeStorageWarning marks non-fatal document-store failures. Errors with
	// this code are logged and never abort an execution.
	CodeStorageWarning Code = "W_STORAGE"
)

// Error carries a failure code alongside the underlying cause.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given code. A nil err yields a bare coded error.
func New(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Newf formats a message and wraps it with the given code.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the Code from err, unwrapping as needed. Returns "" when
// err carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool { return CodeOf(err) == code }

// Fatal reports whether err should abort an execution. Storage warnings are
// the only non-fatal coded errors.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) != CodeStorageWarning
}
