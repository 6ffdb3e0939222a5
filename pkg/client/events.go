package client

import (
	"context"
	"sync"

	"github.com/fr3shw3b/xwire/pkg/xproto"
)

// eventQueue is unbounded and FIFO. The router pushes; any number of
// callers take.
type eventQueue struct {
	mu    sync.Mutex
	items []xproto.Event
	// wake is closed and replaced on every push and on close.
	wake chan struct{}
	err  error
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{})}
}

func (q *eventQueue) push(ev xproto.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, ev)
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *eventQueue) close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	close(q.wake)
	q.wake = make(chan struct{})
}

// take removes the first event accepted by match. Events before it stay
// queued in order.
func (q *eventQueue) take(match func(xproto.Event) bool) (xproto.Event, chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, ev := range q.items {
		if match == nil || match(ev) {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return ev, nil, nil
		}
	}
	if q.err != nil {
		return nil, nil, q.err
	}
	return nil, q.wake, nil
}

func (q *eventQueue) wait(ctx context.Context, match func(xproto.Event) bool) (xproto.Event, error) {
	for {
		ev, wake, err := q.take(match)
		if ev != nil || err != nil {
			return ev, err
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WaitForEvent returns the next event, blocking until one arrives. Errors of
// unchecked requests arrive here as *xproto.AsyncError. Events queued before
// the connection closed are still returned; after that it fails with
// ErrConnectionClosed.
func (c *Conn) WaitForEvent(ctx context.Context) (xproto.Event, error) {
	return c.events.wait(ctx, nil)
}

// PollForEvent returns the next queued event without blocking, or nil.
func (c *Conn) PollForEvent() (xproto.Event, error) {
	ev, _, err := c.events.take(nil)
	return ev, err
}

// WaitForEventAfter returns the first event with a sequence number of at
// least seq. Earlier events are left in the queue for other callers.
func (c *Conn) WaitForEventAfter(ctx context.Context, seq uint64) (xproto.Event, error) {
	return c.events.wait(ctx, func(ev xproto.Event) bool {
		return ev.Header().Seq >= seq
	})
}

// QueuedEvents is the number of events waiting to be taken.
func (c *Conn) QueuedEvents() int {
	return c.events.len()
}
