package ratelimiter

import (
	"sync"
	"time"
)

// Progress gates periodic progress reports of a byte stream. It allows one
// report per interval and measures the throughput since the previous one.
type Progress struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	lastSize int64
}

// NewProgress starts measuring at start bytes. The first report comes one
// full interval later; a zero interval reports every observation.
func NewProgress(interval time.Duration, start int64) *Progress {
	return &Progress{interval: interval, last: time.Now(), lastSize: start}
}

// Observe records the current stream size. It returns ok once per interval,
// together with the bytes per second seen since the last report.
func (p *Progress) Observe(size int64) (rate float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.last)
	if p.interval > 0 && elapsed < p.interval {
		return 0, false
	}

	delta := size - p.lastSize
	if delta < 0 {
		// the stream restarted from zero
		delta = size
	}
	if elapsed > 0 {
		rate = float64(delta) / elapsed.Seconds()
	}
	p.last = now
	p.lastSize = size
	return rate, true
}
