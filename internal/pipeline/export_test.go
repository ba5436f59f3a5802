package pipeline

import (
	"context"
	"time"
)

// SetSleep replaces the runner's backoff sleep.
func SetSleep(r *Runner, fn func(context.Context, time.Duration) bool) {
	r.sleep = fn
}
