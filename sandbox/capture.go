package sandbox

import "sync"

// cappedBuffer keeps the first limit bytes written to it and counts the rest.
// Write never fails, so a child producing unbounded output keeps running
// until its deadline instead of blocking on a full pipe.
type cappedBuffer struct {
	mu      sync.Mutex
	b       []byte
	limit   int
	dropped int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - len(c.b)
	if room <= 0 {
		c.dropped += int64(len(p))
		return len(p), nil
	}
	if len(p) > room {
		c.b = append(c.b, p[:room]...)
		c.dropped += int64(len(p) - room)
		return len(p), nil
	}
	c.b = append(c.b, p...)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.b)
}

// Truncated reports whether any bytes were discarded.
func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped > 0
}
