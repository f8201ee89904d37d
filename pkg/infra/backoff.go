package infra

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// jitterSpread is the +/- fraction applied to every delay
const jitterSpread = 0.2

// Backoff produces growing, jittered retry delays between floor and ceiling
type Backoff struct {
	floor      time.Duration
	ceiling    time.Duration
	multiplier float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

// NewBackoff creates a backoff starting at floor. A ceiling below floor is raised to floor
// and a multiplier below 1 keeps the delay constant.
func NewBackoff(floor, ceiling time.Duration, multiplier float64) *Backoff {
	if ceiling < floor {
		ceiling = floor
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &Backoff{
		floor:      floor,
		ceiling:    ceiling,
		multiplier: multiplier,
		current:    floor,
	}
}

// Next returns the delay for the upcoming attempt and grows the base for the one after.
// The result never drops below floor.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	jitter := time.Duration((rand.Float64()*2 - 1) * jitterSpread * float64(b.current))
	wait := max(b.current+jitter, b.floor)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.ceiling)
	return wait
}

// Wait sleeps for the next delay. It returns early with ctx.Err() when ctx ends.
func (b *Backoff) Wait(ctx context.Context) (time.Duration, error) {
	d := b.Next()
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}

// Reset starts the sequence over after a success
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.floor
	b.attempts = 0
}

// Attempts is the number of delays handed out since the last Reset
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
