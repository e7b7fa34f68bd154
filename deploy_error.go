package main

import "fmt"

// We define a custom error type so that we can provide friendlier error messages
type deployError struct {
	errorCode int    // an error code is an arbitrary int that allows for strongly typed identification of specific errors
	details   string // the output of the underlying error message, if any
	err       error  // the underlying golang error, if any
}

// Implement the golang Error interface
func (e *deployError) Error() string {
	return fmt.Sprintf("%d - %s", e.errorCode, e.details)
}

func (e *deployError) Unwrap() error {
	return e.err
}

func newError(errorCode int, details string) *deployError {
	return &deployError{
		errorCode: errorCode,
		details:   details,
		err:       nil,
	}
}

func wrapError(errorCode int, err error) *deployError {
	return &deployError{
		errorCode: errorCode,
		details:   err.Error(),
		err:       err,
	}
}
