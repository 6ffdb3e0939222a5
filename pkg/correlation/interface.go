// Package correlation tracks requests that have been sent but whose
// responses have not arrived, keyed by sequence number.
package correlation

import (
	"context"
	"errors"
)

var (
	// ErrSequenceExhausted means a new sequence number would be a full window
	// ahead of the oldest unresolved one. The caller has to force a round trip
	// before it can register more.
	ErrSequenceExhausted = errors.New("correlation: sequence window exhausted")
	// ErrUnknownSequence is returned for a response to a sequence number that
	// was never issued or has already been resolved.
	ErrUnknownSequence  = errors.New("correlation: response for a sequence number that is not pending")
	ErrConnectionClosed = errors.New("correlation: connection closed")
	// ErrNoReply is delivered to a value request when a response to a later
	// request arrives first, so no reply will ever come.
	ErrNoReply = errors.New("correlation: request completed without a reply")
)

// Kind is what a pending request expects back.
type Kind uint8

const (
	// KindNone is a request whose cookie was discarded. Nobody waits on it
	// and its error goes to the event stream.
	KindNone Kind = iota
	// KindValue expects a reply.
	KindValue
	// KindCheckedVoid expects no reply, but its caller waits to learn whether
	// it failed.
	KindCheckedVoid
	// KindVoid is an unchecked void request. Like KindNone nobody waits on
	// it, but a reply to it is a protocol violation.
	KindVoid
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindCheckedVoid:
		return "checked-void"
	case KindVoid:
		return "void"
	}
	return "none"
}

// Waited reports whether a caller holds the entry and is notified when it
// resolves.
func (k Kind) Waited() bool {
	return k == KindValue || k == KindCheckedVoid
}

// Outcome is what a pending entry resolves to: the raw reply, an error, or
// neither for a void request that succeeded.
type Outcome struct {
	Reply []byte
	Err   error
}

// Entry is the caller's handle on a pending request.
type Entry struct {
	Seq     uint64
	done    chan struct{}
	outcome Outcome
}

func newEntry(seq uint64) *Entry {
	return &Entry{Seq: seq, done: make(chan struct{})}
}

// Done is closed once the entry is resolved.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Outcome returns the resolution without blocking.
func (e *Entry) Outcome() (Outcome, bool) {
	select {
	case <-e.done:
		return e.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the entry is resolved or ctx is done. Waiting again
// after a cancelled wait is allowed.
func (e *Entry) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-e.done:
		return e.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Table is the set of pending requests of one connection. Register is called
// by the dispatcher, Widen, Complete and Resolve by the single router.
type Table interface {
	// Register allocates the next sequence number.
	Register(kind Kind) (*Entry, error)
	// RegisterFlush is Register for the synchronisation request that relieves
	// exhaustion. It may use the headroom past the window.
	RegisterFlush(kind Kind) (*Entry, error)
	// Widen maps a 16-bit wire sequence number to the full number, relative
	// to the last one issued.
	Widen(wire uint16) uint64
	// Issued is the last sequence number handed out; 0 before the first.
	Issued() uint64
	// Resolve delivers outcome to seq and removes it, returning the kind it
	// was registered with.
	Resolve(seq uint64, outcome Outcome) (Kind, error)
	// Complete resolves every entry before seq: the server has moved past
	// them without a response of their own.
	Complete(before uint64) int
	// Abandon turns a pending value or checked entry into KindNone.
	Abandon(seq uint64)
	// Oldest is the lowest unresolved sequence number.
	Oldest() (uint64, bool)
	Len() int
	// Close resolves every pending entry with err and fails later calls.
	Close(err error)
}
