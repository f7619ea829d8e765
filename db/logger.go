package db

import (
	"fmt"
	"log"
)

// Logger defines an interface for writing log messages, kept independent of
// any particular logging package so the engine can be embedded inside a host
// process with its own logging conventions.
type Logger interface {
	Printf(format string, args ...interface{})
}

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger struct{}

func (DefaultLogger) Printf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}
