package crawler

import (
	"context"
	"time"
)

// MaxSleepChunk bounds how long a single timer may block before the context
// is re-checked.
const MaxSleepChunk = time.Second

// ChunkedSleep waits for delay in chunks of at most MaxSleepChunk and returns
// ctx.Err() as soon as the context is done.
func ChunkedSleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for delay > 0 {
		step := min(delay, MaxSleepChunk)
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay -= step
	}
	return nil
}
