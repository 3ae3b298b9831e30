package cwl

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes the pre-request jitter and the exponential delay between
// failed attempts.
type Backoff struct {
	BaseDelay time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// Delay returns BaseDelay * 2^attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(b.BaseDelay) * math.Pow(2, float64(attempt)))
}

// Jitter returns a random duration in [MinDelay, MaxDelay].
func (b Backoff) Jitter() time.Duration {
	if b.MaxDelay <= b.MinDelay {
		return b.MinDelay
	}
	return b.MinDelay + randomDuration(b.MaxDelay-b.MinDelay)
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleeper blocks for d or until the context finishes.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
