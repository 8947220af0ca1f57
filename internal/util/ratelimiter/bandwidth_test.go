package ratelimiter

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewBandwidth(t *testing.T) {
	if _, err := NewBandwidth(-1); !errors.Is(err, ErrMustNotBeNegative) {
		t.Errorf("NewBandwidth(-1) error = %v", err)
	}
	b, err := NewBandwidth(0)
	if err != nil || b != nil {
		t.Errorf("NewBandwidth(0) = %v, %v, want nil, nil", b, err)
	}
}

func TestBandwidth_NilIsUnlimited(t *testing.T) {
	var b *Bandwidth
	var buf bytes.Buffer
	w := b.Writer(context.Background(), &buf)
	if w != &buf {
		t.Error("nil Bandwidth should return the writer unchanged")
	}
	if err := b.WaitN(context.Background(), 1<<20); err != nil {
		t.Errorf("WaitN() error = %v", err)
	}
}

func TestBandwidth_Throttles(t *testing.T) {
	b, err := NewBandwidth(1000)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w := b.Writer(context.Background(), &buf)

	start := time.Now()
	// The first 1000 bytes drain the initial burst, the next 500 need ~0.5s
	if _, err := w.Write(make([]byte, 1500)); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("write of 1500 bytes at 1000 B/s took %v", elapsed)
	}
	if buf.Len() != 1500 {
		t.Errorf("wrote %d bytes, want 1500", buf.Len())
	}
}

func TestBandwidth_ContextCancelled(t *testing.T) {
	b, _ := NewBandwidth(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if _, err := b.Writer(ctx, &buf).Write(make([]byte, 100)); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Error("bytes written despite cancellation")
	}
}

func TestBandwidth_WouldMissDeadline(t *testing.T) {
	b, _ := NewBandwidth(10)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The burst passes, the next 10 bytes need a full second
	if err := b.WaitN(ctx, 10); err != nil {
		t.Fatalf("first WaitN() error = %v", err)
	}
	err := b.WaitN(ctx, 10)
	if !errors.Is(err, ErrWouldMissDeadline) {
		t.Errorf("WaitN() error = %v, want ErrWouldMissDeadline", err)
	}
}

func TestBandwidth_CancelIsNotDeadline(t *testing.T) {
	b, _ := NewBandwidth(10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	cancel()

	if err := b.WaitN(ctx, 100); err == nil || errors.Is(err, ErrWouldMissDeadline) {
		t.Errorf("WaitN() error = %v, want a plain cancellation error", err)
	}
}
