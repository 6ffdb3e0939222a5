package correlation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultWindow is how far the newest sequence number may run ahead of
	// the oldest unresolved one before registration has to wait for a round
	// trip.
	DefaultWindow uint64 = 1 << 15
	// DefaultHeadroom is reserved past the window for the round trip itself.
	DefaultHeadroom uint64 = 4096
	// wireSpan is the number of distinct 16-bit sequence numbers; two pending
	// entries this far apart would be indistinguishable on the wire.
	wireSpan uint64 = 1 << 16
)

type InMemoryTableParams struct {
	Window   uint64
	Headroom uint64
}

func NewInMemoryTable(params *InMemoryTableParams, logger *logrus.Logger) Table {
	window, headroom := DefaultWindow, DefaultHeadroom
	if params != nil {
		if params.Window > 0 {
			window = params.Window
		}
		if params.Headroom > 0 {
			headroom = params.Headroom
		}
	}
	if window+headroom >= wireSpan {
		window, headroom = DefaultWindow, DefaultHeadroom
	}
	return &inMemoryTable{
		window:  window,
		hardMax: window + headroom,
		pending: map[uint64]*pendingEntry{},
		logger:  logger,
	}
}

type pendingEntry struct {
	entry *Entry
	kind  Kind
}

type inMemoryTable struct {
	mu      sync.Mutex
	window  uint64
	hardMax uint64
	issued  uint64
	pending map[uint64]*pendingEntry
	// queue holds sequence numbers in issue order. Resolved numbers are
	// dropped lazily when they reach the head.
	queue  []uint64
	closed error
	logger *logrus.Logger
}

func (t *inMemoryTable) Register(kind Kind) (*Entry, error) {
	return t.register(kind, t.window)
}

func (t *inMemoryTable) RegisterFlush(kind Kind) (*Entry, error) {
	return t.register(kind, t.hardMax)
}

func (t *inMemoryTable) register(kind Kind, limit uint64) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return nil, t.closed
	}
	next := t.issued + 1
	if oldest, ok := t.oldestLocked(); ok && next-oldest >= limit {
		t.logger.Debug("sequence window exhausted at ", next, ", oldest pending ", oldest)
		return nil, fmt.Errorf("%w: next %d, oldest pending %d", ErrSequenceExhausted, next, oldest)
	}
	t.issued = next
	e := newEntry(next)
	t.pending[next] = &pendingEntry{entry: e, kind: kind}
	t.queue = append(t.queue, next)
	return e, nil
}

func (t *inMemoryTable) Widen(wire uint16) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	full := t.issued&^(wireSpan-1) | uint64(wire)
	if full > t.issued && full >= wireSpan {
		// A response can only be for something already issued, so the
		// number belongs to the previous 16-bit epoch.
		full -= wireSpan
	}
	return full
}

func (t *inMemoryTable) Issued() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issued
}

func (t *inMemoryTable) Resolve(seq uint64, outcome Outcome) (Kind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return KindNone, t.closed
	}
	p, ok := t.pending[seq]
	if !ok || seq > t.issued {
		return KindNone, fmt.Errorf("%w: %d (last issued %d)", ErrUnknownSequence, seq, t.issued)
	}
	delete(t.pending, seq)
	t.trimLocked()
	if p.kind.Waited() {
		p.entry.outcome = outcome
		close(p.entry.done)
	}
	return p.kind, nil
}

func (t *inMemoryTable) Complete(before uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for len(t.queue) > 0 && t.queue[0] < before {
		seq := t.queue[0]
		t.queue = t.queue[1:]
		p, ok := t.pending[seq]
		if !ok {
			continue
		}
		delete(t.pending, seq)
		n++
		switch p.kind {
		case KindValue:
			p.entry.outcome = Outcome{Err: fmt.Errorf("%w: sequence %d", ErrNoReply, seq)}
			close(p.entry.done)
		case KindCheckedVoid:
			close(p.entry.done)
		}
	}
	return n
}

func (t *inMemoryTable) Abandon(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[seq]; ok && p.kind.Waited() {
		p.kind = KindNone
	}
}

func (t *inMemoryTable) Oldest() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oldestLocked()
}

func (t *inMemoryTable) oldestLocked() (uint64, bool) {
	t.trimLocked()
	if len(t.queue) == 0 {
		return 0, false
	}
	return t.queue[0], true
}

// trimLocked drops resolved numbers from the head of the queue.
func (t *inMemoryTable) trimLocked() {
	i := 0
	for i < len(t.queue) {
		if _, ok := t.pending[t.queue[i]]; ok {
			break
		}
		i++
	}
	if i == 0 {
		return
	}
	t.queue = t.queue[i:]
	if len(t.queue) == 0 {
		t.queue = nil
	}
}

func (t *inMemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *inMemoryTable) Close(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return
	}
	if err == nil || !errors.Is(err, ErrConnectionClosed) {
		err = errors.Join(ErrConnectionClosed, err)
	}
	t.closed = err
	for _, seq := range t.queue {
		p, ok := t.pending[seq]
		if !ok {
			continue
		}
		if p.kind.Waited() {
			p.entry.outcome = Outcome{Err: err}
			close(p.entry.done)
		}
	}
	t.logger.Debug("correlation table closed with ", len(t.pending), " pending entries")
	t.pending = map[uint64]*pendingEntry{}
	t.queue = nil
}
