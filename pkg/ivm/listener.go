package ivm

import (
	"github.com/google/uuid"
)

// InsertFunc is invoked when a row enters a view. index is -1 for
// unordered views and the row's position for ordered (Sort) views.
type InsertFunc func(row Row, index int)

// DeleteFunc is invoked when a row leaves a view.
type DeleteFunc func(row Row, index int)

// UpdateFunc is invoked when a row changes value at the same identity.
// oldIndex/newIndex are -1 for unordered views.
type UpdateFunc func(old, new Row, oldIndex, newIndex int)

// ResetFunc is invoked when a view's contents must be wholesale requeried.
type ResetFunc func()

// SubscriptionToken is returned by every On* registration; Unsubscribe
// removes the listener. Unsubscribing twice is a no-op.
type SubscriptionToken struct {
	id    uuid.UUID
	unsub func()
}

// ID returns the token's diagnostic identifier.
func (t SubscriptionToken) ID() uuid.UUID { return t.id }

// Unsubscribe removes the associated listener.
func (t SubscriptionToken) Unsubscribe() {
	if t.unsub != nil {
		t.unsub()
	}
}

// listenerSlot is one arena entry; free lets Add reuse a vacated slot
// instead of growing the backing slice forever.
type listenerSlot[T any] struct {
	fn   T
	live bool
}

// listenerList is an append-only-looking, free-list-backed collection of
// callbacks of one channel (insert/update/delete/reset) for one view.
// Emit iterates a snapshot copy so a listener may safely subscribe or
// unsubscribe other listeners on the same view during its own callback.
type listenerList[T any] struct {
	slots []listenerSlot[T]
	free  []int
}

func (l *listenerList[T]) add(fn T) int {
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		l.slots[idx] = listenerSlot[T]{fn: fn, live: true}
		return idx
	}
	l.slots = append(l.slots, listenerSlot[T]{fn: fn, live: true})
	return len(l.slots) - 1
}

func (l *listenerList[T]) remove(idx int) {
	if idx < 0 || idx >= len(l.slots) || !l.slots[idx].live {
		return
	}
	var zero T
	l.slots[idx] = listenerSlot[T]{fn: zero, live: false}
	l.free = append(l.free, idx)
}

// snapshot returns the currently-live callbacks in slot order.
func (l *listenerList[T]) snapshot() []T {
	out := make([]T, 0, len(l.slots))
	for _, s := range l.slots {
		if s.live {
			out = append(out, s.fn)
		}
	}
	return out
}
