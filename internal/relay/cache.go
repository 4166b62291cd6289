package relay

// replayCache holds at most one pending payload per event type.
//
// It is not safe for concurrent use on its own; Registry guards it.
type replayCache struct {
	entries map[EventType]any
}

func newReplayCache() *replayCache {
	return &replayCache{entries: map[EventType]any{}}
}

// put stores payload for t, replacing (not queueing behind) any pending value.
// It reports whether an older payload was overwritten.
func (c *replayCache) put(t EventType, payload any) bool {
	_, replaced := c.entries[t]
	c.entries[t] = payload
	return replaced
}

// take removes and returns the pending payload for t.
func (c *replayCache) take(t EventType) (any, bool) {
	p, ok := c.entries[t]
	if ok {
		delete(c.entries, t)
	}
	return p, ok
}

func (c *replayCache) peek(t EventType) (any, bool) {
	p, ok := c.entries[t]
	return p, ok
}

func (c *replayCache) len() int { return len(c.entries) }
