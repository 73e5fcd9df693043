// Package errors provides error handling utilities for remoteglm.
//
// This file contains panic recovery used by worker goroutines so that a panic
// while processing one column surfaces as an error instead of crashing the run.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error that was created from a recovered panic.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String provides detailed information including stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a new PanicError with the given operation context and panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover is used with defer to convert a panic into an error assigned to *err.
//
// Usage:
//
//	func work() (err error) {
//	    defer Recover(&err, "work")
//	    ...
//	}
//
// If the function already returned an error, the panic is wrapped around it.
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)", operation, r, *err)
			return
		}
		*err = NewPanicError(operation, r)
	}
}

// SafeExecute executes fn and converts any panic into a PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
