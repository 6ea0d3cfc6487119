package client

import (
	"context"
	"time"

	"github.com/satishbabariya/contentql/internal/debug"
)

// Operation distinguishes read and write requests
type Operation string

const (
	OperationQuery    Operation = "query"
	OperationMutation Operation = "mutation"
)

// RequestEvent describes one request passing through the middleware chain
type RequestEvent struct {
	Operation Operation
	Role      string
	Nodes     int
	Start     time.Time
	End       time.Time
	Duration  time.Duration
	// Error is nil for mutations rolled back because of input errors
	Error error
}

// Middleware intercepts requests
type Middleware func(ctx context.Context, event *RequestEvent, next func() error) error

func chain(ctx context.Context, middlewares []Middleware, event *RequestEvent, exec func() error) error {
	var next func() error
	index := 0

	next = func() error {
		if index >= len(middlewares) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			if err != errRollback {
				event.Error = err
			}
			return err
		}
		m := middlewares[index]
		index++
		return m(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every request through the debug logger
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *RequestEvent, next func() error) error {
		debug.Debug("request started", "operation", string(event.Operation), "role", event.Role, "nodes", event.Nodes)
		err := next()
		if event.Error != nil {
			debug.Warn("request failed", "operation", string(event.Operation), "error", event.Error)
		} else {
			debug.Debug("request completed", "operation", string(event.Operation), "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports request durations
func TimingMiddleware(onTiming func(op Operation, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *RequestEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Operation, event.Duration)
		}
		return err
	}
}
