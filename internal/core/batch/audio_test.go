package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkRecorder struct {
	mu     sync.Mutex
	chunks [][]int16
}

func (r *chunkRecorder) record(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, samples)
}

func (r *chunkRecorder) all() [][]int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int16, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func TestAudioFlushOnSampleThreshold(t *testing.T) {
	rec := &chunkRecorder{}
	b := NewAudioBuffer(100, time.Minute, rec.record)

	b.Append(make([]int16, 60))
	assert.Empty(t, rec.all(), "below threshold must not flush")

	b.Append(make([]int16, 60))
	chunks := rec.all()
	require.Len(t, chunks, 1)
	// Segments are merged into one chunk.
	assert.Len(t, chunks[0], 120)
}

func TestAudioFlushOnInactivityTimeout(t *testing.T) {
	rec := &chunkRecorder{}
	b := NewAudioBuffer(100000, 30*time.Millisecond, rec.record)

	b.Append(make([]int16, 10))
	assert.Empty(t, rec.all())

	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAudioAppendRefreshesTimeout(t *testing.T) {
	rec := &chunkRecorder{}
	b := NewAudioBuffer(100000, 60*time.Millisecond, rec.record)

	b.Append(make([]int16, 10))
	time.Sleep(30 * time.Millisecond)
	b.Append(make([]int16, 10))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.all(), "refreshed timer must not have fired yet")

	assert.Eventually(t, func() bool {
		chunks := rec.all()
		return len(chunks) == 1 && len(chunks[0]) == 20
	}, time.Second, 5*time.Millisecond)
}

func TestAudioCloseDrainsPartialBuffer(t *testing.T) {
	rec := &chunkRecorder{}
	b := NewAudioBuffer(100000, time.Minute, rec.record)

	b.Append(make([]int16, 42))
	b.Close()

	chunks := rec.all()
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 42)

	// Appends after close are dropped, and close is idempotent.
	b.Append(make([]int16, 10))
	b.Close()
	assert.Len(t, rec.all(), 1)
}

func TestAudioAppendNotBlockedBySlowFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := NewAudioBuffer(100, time.Minute, func(samples []int16) {
		close(started)
		<-release
	})
	defer close(release)

	go b.Append(make([]int16, 100))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("threshold flush never started")
	}

	// The downstream is still busy; appending more audio must not wait on it.
	done := make(chan struct{})
	go func() {
		b.Append(make([]int16, 10))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked behind a slow flush callback")
	}
}

func TestAudioEmptyFlushIsNoOp(t *testing.T) {
	rec := &chunkRecorder{}
	b := NewAudioBuffer(100, time.Minute, rec.record)
	b.Flush()
	b.Close()
	assert.Empty(t, rec.all())
}
