package batch

import (
	"sync"
	"time"
)

// AudioBuffer coalesces speech-segment sample buffers into one merged chunk,
// flushed downstream when either the sample threshold is reached or the
// inactivity timeout elapses. The timeout is refreshed on every append, so a
// trailing partial segment is delivered with bounded latency rather than
// waiting for more speech. The flush callback runs outside the buffer's lock,
// so a slow downstream (transcription, analysis) never blocks Append or Close.
type AudioBuffer struct {
	mu sync.Mutex

	maxSamples int
	maxWait    time.Duration
	flush      func(samples []int16)

	samples []int16
	timer   *time.Timer
	closed  bool
}

func NewAudioBuffer(maxSamples int, maxWait time.Duration, flush func(samples []int16)) *AudioBuffer {
	return &AudioBuffer{
		maxSamples: maxSamples,
		maxWait:    maxWait,
		flush:      flush,
	}
}

// Append adds one speech segment. Flushes synchronously once the sample
// threshold is met.
func (b *AudioBuffer) Append(segment []int16) {
	b.mu.Lock()

	if b.closed || len(segment) == 0 {
		b.mu.Unlock()
		return
	}

	b.samples = append(b.samples, segment...)

	if len(b.samples) >= b.maxSamples {
		out := b.takeLocked()
		b.mu.Unlock()
		b.flush(out)
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.maxWait, b.timeout)
	b.mu.Unlock()
}

func (b *AudioBuffer) timeout() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	out := b.takeLocked()
	b.mu.Unlock()
	if len(out) > 0 {
		b.flush(out)
	}
}

// Flush drains any buffered samples immediately.
func (b *AudioBuffer) Flush() {
	b.mu.Lock()
	out := b.takeLocked()
	b.mu.Unlock()
	if len(out) > 0 {
		b.flush(out)
	}
}

// takeLocked stops the pending timer and hands over the buffered samples.
// Callers must hold b.mu and invoke the flush callback after releasing it.
func (b *AudioBuffer) takeLocked() []int16 {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	out := b.samples
	b.samples = nil
	return out
}

// Close cancels the pending timer and drains the remaining samples through
// the normal flush path. No partial chunk is ever discarded.
func (b *AudioBuffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	out := b.takeLocked()
	b.mu.Unlock()
	if len(out) > 0 {
		b.flush(out)
	}
}
