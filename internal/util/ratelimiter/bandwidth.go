package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// ErrMustNotBeNegative is returned for a negative byte rate
var ErrMustNotBeNegative = errors.New("bytes per second must not be negative")

// ErrWouldMissDeadline is returned when waiting for bytes would outlast the
// context deadline. The context itself is still alive at that point.
var ErrWouldMissDeadline = errors.New("bandwidth wait would pass the deadline")

// Bandwidth is a token bucket over bytes. A nil *Bandwidth is unlimited.
type Bandwidth struct {
	limiter *rate.Limiter
	burst   int
}

// NewBandwidth creates a byte rate limiter shared by every writer it wraps.
// Zero means unlimited and returns nil.
func NewBandwidth(bytesPerSec int64) (*Bandwidth, error) {
	if bytesPerSec < 0 {
		return nil, ErrMustNotBeNegative
	}
	if bytesPerSec == 0 {
		return nil, nil
	}

	burst := int(bytesPerSec)
	if bytesPerSec > 1<<30 {
		burst = 1 << 30
	}
	return &Bandwidth{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:   burst,
	}, nil
}

// WaitN blocks until n bytes may pass or ctx is done.
func (b *Bandwidth) WaitN(ctx context.Context, n int) error {
	if b == nil {
		return nil
	}
	for n > 0 {
		chunk := n
		if chunk > b.burst {
			chunk = b.burst
		}
		if err := b.limiter.WaitN(ctx, chunk); err != nil {
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return fmt.Errorf("%w: %w", ErrWouldMissDeadline, err)
			}
			return fmt.Errorf("bandwidth wait: %w", err)
		}
		n -= chunk
	}
	return nil
}

// Writer wraps w so that every write waits for its bytes.
func (b *Bandwidth) Writer(ctx context.Context, w io.Writer) io.Writer {
	if b == nil {
		return w
	}
	return &throttledWriter{ctx: ctx, bw: b, w: w}
}

type throttledWriter struct {
	ctx context.Context
	bw  *Bandwidth
	w   io.Writer
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if err := t.bw.WaitN(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}
