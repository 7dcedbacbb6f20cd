package nvmerr

import (
	"log"
)

// ErrorLogger may be used to report errors generated asynchronously by
// the background cleaner, which cannot return them to any caller
// directly. Implementations may decide to log, mutate, redirect or
// discard them.
type ErrorLogger interface {
	Log(err error)
}

type defaultErrorLogger struct{}

func (l defaultErrorLogger) Log(err error) {
	log.Print(err)
}

// DefaultErrorLogger writes errors using Go's standard logging package.
var DefaultErrorLogger ErrorLogger = defaultErrorLogger{}
