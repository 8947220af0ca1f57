package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func testConfig(attempts int) Config {
	return Config{Attempts: attempts, Wait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestCoordinator_Do(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		results      []error
		wantAttempts int
		wantErr      error
	}{
		{
			name:         "first try succeeds",
			attempts:     3,
			results:      []error{nil},
			wantAttempts: 1,
		},
		{
			name:         "transient then success",
			attempts:     3,
			results:      []error{errTransient, errTransient, nil},
			wantAttempts: 3,
		},
		{
			name:         "budget exhausted",
			attempts:     3,
			results:      []error{errTransient, errTransient, errTransient, nil},
			wantAttempts: 3,
			wantErr:      errTransient,
		},
		{
			name:         "fatal stops immediately",
			attempts:     5,
			results:      []error{errTransient, errFatal, nil},
			wantAttempts: 2,
			wantErr:      errFatal,
		},
		{
			name:         "single attempt",
			attempts:     1,
			results:      []error{errTransient, nil},
			wantAttempts: 1,
			wantErr:      errTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testConfig(tt.attempts), zap.NewNop())

			calls := 0
			op := func() error {
				err := tt.results[calls]
				calls++
				return err
			}

			attempts, err := c.Do(context.Background(), op, isTransient)
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if attempts != calls {
				t.Errorf("attempts = %d but op ran %d times", attempts, calls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Do() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCoordinator_PermanentErrorIsUnwrapped(t *testing.T) {
	c := New(testConfig(3), zap.NewNop())
	_, err := c.Do(context.Background(), func() error { return errFatal }, isTransient)
	if err != errFatal {
		t.Errorf("Do() error = %#v, want the original error value", err)
	}
}

func TestCoordinator_ContextCancelledBetweenAttempts(t *testing.T) {
	c := New(Config{Attempts: 10, Wait: time.Hour, MaxWait: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	op := func() error {
		cancel()
		return errTransient
	}

	start := time.Now()
	attempts, err := c.Do(ctx, op, isTransient)
	if time.Since(start) > 5*time.Second {
		t.Fatal("Do() did not stop on cancellation")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestNew_Normalizes(t *testing.T) {
	c := New(Config{Attempts: 0, Wait: time.Second}, zap.NewNop())
	if c.cfg.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", c.cfg.Attempts)
	}
	if c.cfg.MaxWait != time.Second {
		t.Errorf("MaxWait = %v, want %v", c.cfg.MaxWait, time.Second)
	}
}
