// ABOUTME: In-memory conversation cache keyed by conversation id
// ABOUTME: Upsert/delete/lookup plus snapshots sorted most-recent-first

package conversation

import (
	"sort"
	"sync"
)

// Cache holds the single writable copy of a user's conversations. Readers
// always receive copies; the cache is never handed out by reference.
//
// Lookups are linear scans. Per-user conversation counts are small enough
// that a slice beats keeping a parallel index consistent.
type Cache struct {
	mu    sync.RWMutex
	items []Conversation
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Upsert replaces the conversation with the same id, or appends it.
// Returns true if the conversation was not cached before.
func (c *Cache) Upsert(conv Conversation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	inserted := true
	if i := c.indexLocked(conv.ConversationID); i >= 0 {
		c.items[i] = conv
		inserted = false
	} else {
		c.items = append(c.items, conv)
	}
	c.sortLocked()
	return inserted
}

// Delete removes the conversation if present and reports whether it was.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// Get returns a copy of the conversation with the given id.
func (c *Cache) Get(id string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	return Conversation{}, false
}

// Sorted re-sorts the cache and returns a copy ordered by timestamp, newest first.
func (c *Cache) Sorted() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sortLocked()
	out := make([]Conversation, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// indexLocked must be called with mu held.
func (c *Cache) indexLocked(id string) int {
	for i := range c.items {
		if c.items[i].ConversationID == id {
			return i
		}
	}
	return -1
}

// sortLocked must be called with mu held for writing.
func (c *Cache) sortLocked() {
	if len(c.items) < 2 {
		return
	}
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Timestamp > c.items[j].Timestamp
	})
}
