package batch

import (
	"sync"
	"time"
)

// Controller decides when enough transcript has accumulated to justify an
// analysis pass, and guarantees at most one in-flight pass per session key.
// A trigger attempt while a pass is pending is silently dropped; the backlog
// is naturally picked up by the next successful check.
type Controller struct {
	mu sync.Mutex

	minContent int
	maxWait    time.Duration

	sessions map[string]*window
	clock    func() time.Time
}

type window struct {
	lastAnalyzedLength int
	lastAnalysisTime   time.Time
	pending            bool
}

func NewController(minContent int, maxWait time.Duration) *Controller {
	return &Controller{
		minContent: minContent,
		maxWait:    maxWait,
		sessions:   make(map[string]*window),
		clock:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (c *Controller) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

func (c *Controller) ensure(key string) *window {
	w, ok := c.sessions[key]
	if !ok {
		w = &window{lastAnalysisTime: c.clock()}
		c.sessions[key] = w
	}
	return w
}

// TryBegin checks the content and timeout thresholds and, if either is met
// and no pass is in flight, atomically marks the session pending. The caller
// must call Complete when the pass resolves, success or failure.
func (c *Controller) TryBegin(key string, fullTextLength int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.ensure(key)
	if w.pending {
		return false
	}

	now := c.clock()
	newContent := fullTextLength - w.lastAnalyzedLength
	if newContent < c.minContent && now.Sub(w.lastAnalysisTime) < c.maxWait {
		return false
	}

	w.pending = true
	return true
}

// Complete releases the in-flight lock. On success the analyzed length
// advances so the same content is not re-sent; on failure only the clock
// advances, leaving the unprocessed content to be retried on the next
// trigger.
func (c *Controller) Complete(key string, analyzedLength int, succeeded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.ensure(key)
	w.pending = false
	w.lastAnalysisTime = c.clock()
	if succeeded {
		w.lastAnalyzedLength = analyzedLength
	}
}

// Pending reports whether a pass is in flight for the key.
func (c *Controller) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.sessions[key]
	return ok && w.pending
}

// Drop discards the window state for a key at session teardown.
func (c *Controller) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, key)
}
