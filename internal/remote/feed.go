// ABOUTME: Unbounded FIFO event feed backing a single subscription
// ABOUTME: Producers never block; a pump goroutine hands events to the consumer in order

package remote

import (
	"sync"
)

// Feed is a Subscription whose events are queued without bound and pumped to
// the Events channel in push order. Push never blocks, so a slow consumer
// cannot stall a writer that holds tree locks.
type Feed struct {
	id   string
	path string
	out  chan Event

	mu     sync.Mutex
	queue  []Event
	closed bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewFeed creates a feed and starts its pump goroutine.
func NewFeed(id, path string) *Feed {
	f := &Feed{
		id:   id,
		path: path,
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go f.pump()
	return f
}

// ID returns the subscription identifier.
func (f *Feed) ID() string { return f.id }

// Path returns the subscribed collection path.
func (f *Feed) Path() string { return f.path }

// Events returns the consumer channel. It is closed after Close.
func (f *Feed) Events() <-chan Event { return f.out }

// Done is closed once Close has been called.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Push enqueues an event. Events pushed after Close are discarded.
func (f *Feed) Push(ev Event) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, ev)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery. Queued but undelivered events are dropped.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.queue = nil
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *Feed) pump() {
	defer close(f.out)

	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		ev := f.queue[0]
		f.queue[0] = Event{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- ev:
		case <-f.done:
			return
		}
	}
}
