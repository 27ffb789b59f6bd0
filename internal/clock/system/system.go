// Package system provides the wall clock and the interruptible sleeper used in
// production runs.
package system

import (
	"context"
	"time"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Clock implements crawler.Clock and crawler.Sleeper using the real time source.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d in short chunks so cancellation is observed promptly.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	return crawler.ChunkedSleep(ctx, d)
}
