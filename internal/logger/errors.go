package logger

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrAppNameIsEmpty is returned when Log.AppName is missing.
	ErrAppNameIsEmpty = errors.New("config Log.AppName can not be empty")

	// ErrServiceNameIsEmpty is returned when Log.ServiceName is missing.
	ErrServiceNameIsEmpty = errors.New("config Log.ServiceName can not be empty")
)

// ErrorHandler reports lines zerolog failed to write. Init installs it.
func ErrorHandler(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "okupy: could not write log line: %v\n", err)
}
