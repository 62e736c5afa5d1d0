// ABOUTME: Tests for the listener Registry fan-out
// ABOUTME: Covers registration order, upsert, removal, panics, and concurrent notify

package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	kind eventKind
	conv *Conversation
	err  error
}

// recordingListener keeps every notification it receives.
type recordingListener struct {
	name string
	mu   sync.Mutex
	got  []notification
	log  *[]string // shared delivery log for ordering assertions
}

func (l *recordingListener) record(kind eventKind, conv *Conversation, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, notification{kind: kind, conv: conv, err: err})
	if l.log != nil {
		*l.log = append(*l.log, l.name)
	}
}

func (l *recordingListener) ConversationAdded(conv *Conversation, err error) {
	l.record(eventAdded, conv, err)
}

func (l *recordingListener) ConversationChanged(conv *Conversation, err error) {
	l.record(eventChanged, conv, err)
}

func (l *recordingListener) ConversationRemoved(conv *Conversation, err error) {
	l.record(eventRemoved, conv, err)
}

func (l *recordingListener) notifications() []notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]notification, len(l.got))
	copy(out, l.got)
	return out
}

func TestRegistry_NotifyReachesEveryListenerInOrder(t *testing.T) {
	r := NewRegistry(nil)

	var order []string
	a := &recordingListener{name: "a", log: &order}
	b := &recordingListener{name: "b", log: &order}
	c := &recordingListener{name: "c", log: &order}
	r.Add(a)
	r.Add(b)
	r.Add(c)

	r.NotifyAdded(&Conversation{ConversationID: "c1"}, nil)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, l := range []*recordingListener{a, b, c} {
		got := l.notifications()
		require.Len(t, got, 1)
		assert.Equal(t, eventAdded, got[0].kind)
		assert.Equal(t, "c1", got[0].conv.ConversationID)
		assert.NoError(t, got[0].err)
	}
}

func TestRegistry_ExactlyOneOfValueOrError(t *testing.T) {
	r := NewRegistry(nil)
	l := &recordingListener{}
	r.Add(l)

	decodeErr := &DecodeError{Key: "c1", Err: ErrNoFields}
	r.NotifyChanged(&Conversation{ConversationID: "c1"}, decodeErr)
	r.NotifyRemoved(nil, nil)

	got := l.notifications()
	require.Len(t, got, 1, "empty notifications are dropped")
	assert.Nil(t, got[0].conv, "error wins over value")
	assert.ErrorIs(t, got[0].err, ErrNoFields)
}

func TestRegistry_ListenersGetIndependentCopies(t *testing.T) {
	r := NewRegistry(nil)

	mutator := &ListenerFuncs{Added: func(conv *Conversation, _ error) {
		conv.LastMessageText = "tampered"
	}}
	observer := &recordingListener{}
	r.Add(mutator)
	r.Add(observer)

	original := &Conversation{ConversationID: "c1", LastMessageText: "hello"}
	r.NotifyAdded(original, nil)

	assert.Equal(t, "hello", original.LastMessageText)
	assert.Equal(t, "hello", observer.notifications()[0].conv.LastMessageText)
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	l := &recordingListener{}

	r.Add(l)
	r.Add(l)
	assert.Equal(t, 1, r.Len())

	r.NotifyAdded(&Conversation{ConversationID: "c1"}, nil)
	assert.Len(t, l.notifications(), 1)
}

func TestRegistry_UpsertMovesListenerToEnd(t *testing.T) {
	r := NewRegistry(nil)
	a := &recordingListener{name: "a"}
	b := &recordingListener{name: "b"}

	r.Add(a)
	r.Add(b)
	r.Upsert(a)

	assert.Equal(t, []Listener{b, a}, r.Listeners())

	c := &recordingListener{name: "c"}
	r.Upsert(c)
	assert.Equal(t, []Listener{b, a, c}, r.Listeners())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil)
	a := &recordingListener{}
	b := &recordingListener{}
	r.Add(a)
	r.Add(b)

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.False(t, r.Remove(nil))

	r.NotifyAdded(&Conversation{ConversationID: "c1"}, nil)
	assert.Empty(t, a.notifications())
	assert.Len(t, b.notifications(), 1)
}

func TestRegistry_RemoveAllThenNotifyIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	l := &recordingListener{}
	r.Add(l)

	r.RemoveAll()
	assert.Equal(t, 0, r.Len())

	r.NotifyAdded(&Conversation{ConversationID: "c1"}, nil)
	r.NotifyChanged(nil, errors.New("boom"))
	assert.Empty(t, l.notifications())
}

func TestRegistry_PanickingListenerDoesNotStopFanOut(t *testing.T) {
	r := NewRegistry(nil)

	r.Add(&ListenerFuncs{Changed: func(*Conversation, error) { panic("listener bug") }})
	after := &recordingListener{}
	r.Add(after)

	assert.NotPanics(t, func() {
		r.NotifyChanged(&Conversation{ConversationID: "c1"}, nil)
	})
	assert.Len(t, after.notifications(), 1)
}

func TestRegistry_ListenerMayUnregisterDuringNotify(t *testing.T) {
	r := NewRegistry(nil)

	var self *ListenerFuncs
	self = &ListenerFuncs{Added: func(*Conversation, error) { r.Remove(self) }}
	r.Add(self)
	other := &recordingListener{}
	r.Add(other)

	r.NotifyAdded(&Conversation{ConversationID: "c1"}, nil)

	assert.Equal(t, 1, r.Len())
	assert.Len(t, other.notifications(), 1, "snapshot taken before removal still delivers")
}

func TestRegistry_ConcurrentRegisterAndNotify(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			l := &recordingListener{}
			r.Add(l)
			r.Upsert(l)
			r.Remove(l)
		})
	}
	for range 10 {
		wg.Go(func() {
			for range 10 {
				r.NotifyAdded(&Conversation{ConversationID: "c"}, nil)
			}
		})
	}
	wg.Wait()
	// If we get here without deadlock or panic, the test passes
}
