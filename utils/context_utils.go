package utils

import (
	"time"

	"golang.org/x/net/context"
)

// CheckContextDone checks if a provided context has indicated it is done, and returns a boolean indicating if it is.
func CheckContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// WaitOrDone blocks until the done channel is closed, the timeout elapses or the context is cancelled. Returns true
// only if the done channel was closed within the timeout.
func WaitOrDone(ctx context.Context, done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		// A cancelled caller still gets a final non-blocking look at the channel
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}
