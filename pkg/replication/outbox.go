package replication

import (
	"context"
	"sync"

	"github.com/sasha-s/go-deadlock"
)

// Outbox buffers the changes destined for one client. It holds only the
// newest change per slot, so a slow client receives final values rather
// than every intermediate one, and offering to it never blocks.
type Outbox struct {
	ID ClientID

	fields map[string]struct{}

	mutex     deadlock.Mutex
	pending   map[string]Change
	coalesced uint64

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbox(id ClientID, fields []string) *Outbox {
	o := &Outbox{
		ID:      id,
		pending: make(map[string]Change),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if len(fields) > 0 {
		o.fields = make(map[string]struct{}, len(fields))
		for _, field := range fields {
			o.fields[field] = struct{}{}
		}
	}
	return o
}

func (o *Outbox) wants(field string) bool {
	if o.fields == nil {
		return true
	}
	_, ok := o.fields[field]
	return ok
}

func (o *Outbox) offer(changes []Change) {
	o.mutex.Lock()
	added := false
	for _, change := range changes {
		if !o.wants(change.Field) {
			continue
		}
		slot := change.slot()
		if _, ok := o.pending[slot]; ok {
			o.coalesced++
		}
		o.pending[slot] = change
		added = true
	}
	o.mutex.Unlock()

	if !added {
		return
	}

	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *Outbox) close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

// Ready is signalled whenever new changes are pending.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Done is closed when the client is unsubscribed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Drain takes every pending change, oldest first.
func (o *Outbox) Drain() []Change {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if len(o.pending) == 0 {
		return nil
	}

	changes := make([]Change, 0, len(o.pending))
	for _, change := range o.pending {
		changes = append(changes, change)
	}
	o.pending = make(map[string]Change)

	sortChanges(changes)
	return changes
}

// Next blocks until changes are pending, the outbox is closed or ctx is
// done.
func (o *Outbox) Next(ctx context.Context) ([]Change, error) {
	for {
		if changes := o.Drain(); len(changes) > 0 {
			return changes, nil
		}

		select {
		case <-o.ready:
		case <-o.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Coalesced reports how many changes were overwritten before delivery.
func (o *Outbox) Coalesced() uint64 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.coalesced
}
