package errors

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports a listener call that outlived its time limit.
// Timeouts are transient.
type TimeoutError struct {
	Listener  string
	EventType string
	Limit     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("listener %s on %s exceeded %s", e.Listener, e.EventType, e.Limit)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }
