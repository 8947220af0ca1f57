package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Config holds the retry policy
type Config struct {
	// Attempts is the total number of tries, including the first
	Attempts int
	// Wait is the delay before the first retry
	Wait time.Duration
	// MaxWait caps the exponential growth
	MaxWait time.Duration
	// Jitter is the randomization factor applied to every delay
	Jitter float64
}

// DefaultConfig returns the default retry policy
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Wait:     2 * time.Second,
		MaxWait:  30 * time.Second,
		Jitter:   0.5,
	}
}

// Coordinator runs an operation under a bounded exponential backoff
type Coordinator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a new Coordinator
func New(cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.MaxWait < cfg.Wait {
		cfg.MaxWait = cfg.Wait
	}
	return &Coordinator{cfg: cfg, logger: logger}
}

// Do calls op until it succeeds, returns an error that transient rejects,
// the attempt budget runs out, or ctx is done. It returns the number of
// attempts made and the last error.
func (c *Coordinator) Do(ctx context.Context, op func() error, transient func(error) bool) (int, error) {
	attempts := 0
	var lastErr error

	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying after transient error",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(wrapped, backoff.WithContext(c.policy(), ctx), notify)
	if err != nil && lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(lastErr, ctx.Err()) {
		// Cancelled while waiting between attempts
		err = fmt.Errorf("%w (last error: %v)", err, lastErr)
	}
	return attempts, err
}

func (c *Coordinator) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Wait
	b.MaxInterval = c.cfg.MaxWait
	b.RandomizationFactor = c.cfg.Jitter
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.cfg.Attempts-1))
}
