// ABOUTME: Thread-safe TTL claim cache used to suppress repeated work per key
// ABOUTME: The reconciler claims a conversation id before issuing a mark-read write

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// claim stores when a key was claimed and its position in the eviction order.
type claim struct {
	at      time.Time
	element *list.Element
}

// Cache tracks claimed keys for a fixed window. It is bounded: when full, the
// oldest claim is evicted. Expired claims are swept in the background.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache whose claims last ttl, holding at most maxSize keys.
// A non-positive maxSize means unbounded.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

// Claim marks key as claimed and returns true, unless it already holds an
// unexpired claim, in which case it returns false and changes nothing.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cl, ok := c.claims[key]; ok {
		if now.Sub(cl.at) < c.ttl {
			return false
		}
		c.order.Remove(cl.element)
		delete(c.claims, key)
	}

	if c.maxSize > 0 && len(c.claims) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	return true
}

// Claimed reports whether key holds an unexpired claim.
func (c *Cache) Claimed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.claims[key]
	return ok && c.now().Sub(cl.at) < c.ttl
}

// Release drops the claim on key so the next Claim succeeds.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.claims[key]; ok {
		c.order.Remove(cl.element)
		delete(c.claims, key)
	}
}

// Len returns the number of tracked claims, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// evictOldestLocked must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Minute {
		return time.Minute
	}
	return ttl
}

func (c *Cache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims. Claims are ordered by age, so it stops at the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		cl := c.claims[key]
		if cl != nil && now.Sub(cl.at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.claims, key)
		e = next
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
