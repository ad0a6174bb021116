// Package replication pushes server-held values to client mirrors.
//
// Every change is stamped with a sequence number from the Hub. Clients
// receive changes through a coalescing Outbox, so a burst of writes to one
// value is delivered as its final state, and a Mirror discards anything
// older than what it already holds.
package replication

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/sasha-s/go-deadlock"
)

type Role uint8

const (
	RoleAuthority Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleClient:
		return "client"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

type ClientID uint32

var (
	ErrNotAuthority = errors.New("replication: not the authority")
	ErrClosed       = errors.New("replication: outbox closed")
)

// Change is a single value transition as sent over the wire. Key is empty
// for plain properties.
type Change struct {
	Seq     uint64          `cbor:"1,keyasint"`
	Field   string          `cbor:"2,keyasint"`
	Key     cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Value   cbor.RawMessage `cbor:"4,keyasint,omitempty"`
	Deleted bool            `cbor:"5,keyasint,omitempty"`
}

func (c Change) slot() string {
	return c.Field + "\x00" + string(c.Key)
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Seq < changes[j].Seq
	})
}

type entry struct {
	change Change
	sum    uint64
}

// Hub is the per-match replication point. Only the authority goroutine
// publishes; subscriptions may come from any goroutine.
type Hub struct {
	role Role

	mutex    deadlock.Mutex
	seq      uint64
	fields   map[string]struct{}
	state    map[string]entry
	outboxes map[ClientID]*Outbox

	batchDepth int
	batch      []Change
}

func NewHub(role Role) *Hub {
	return &Hub{
		role:     role,
		fields:   make(map[string]struct{}),
		state:    make(map[string]entry),
		outboxes: make(map[ClientID]*Outbox),
	}
}

func (h *Hub) Role() Role {
	return h.role
}

func (h *Hub) register(field string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.fields[field]; ok {
		panic(fmt.Sprintf("replication: field %q registered twice", field))
	}
	h.fields[field] = struct{}{}
}

// publish records a change and fans it out. It returns false when the value
// is identical to the one already held for that slot.
func (h *Hub) publish(field string, key, value []byte, deleted bool) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	change := Change{
		Field:   field,
		Key:     key,
		Value:   value,
		Deleted: deleted,
	}
	slot := change.slot()
	sum := xxhash.Sum64(value)

	existing, ok := h.state[slot]
	if deleted && !ok {
		return false
	}
	if !deleted && ok && existing.sum == sum {
		return false
	}

	h.seq++
	change.Seq = h.seq

	if deleted {
		delete(h.state, slot)
	} else {
		h.state[slot] = entry{change: change, sum: sum}
	}

	if h.batchDepth > 0 {
		h.batch = append(h.batch, change)
		return true
	}

	h.fanout([]Change{change})
	return true
}

func (h *Hub) fanout(changes []Change) {
	for _, outbox := range h.outboxes {
		outbox.offer(changes)
	}
}

// Batch runs fn and delivers every change it publishes to each client in
// a single offer, so no client can drain half of the batch.
func (h *Hub) Batch(fn func()) {
	h.mutex.Lock()
	h.batchDepth++
	h.mutex.Unlock()

	defer func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()

		h.batchDepth--
		if h.batchDepth > 0 || len(h.batch) == 0 {
			return
		}
		h.fanout(h.batch)
		h.batch = nil
	}()

	fn()
}

// Snapshot returns the latest change of every live slot ordered by
// sequence number.
func (h *Hub) Snapshot() []Change {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.snapshot()
}

func (h *Hub) snapshot() []Change {
	changes := make([]Change, 0, len(h.state))
	for _, e := range h.state {
		changes = append(changes, e.change)
	}
	sortChanges(changes)
	return changes
}

// Subscribe registers a client and queues the current state so its first
// delivery is a full snapshot. Fields limits the subscription; no fields
// means everything. Subscribing an id twice replaces the old outbox.
func (h *Hub) Subscribe(id ClientID, fields ...string) *Outbox {
	outbox := newOutbox(id, fields)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if old, ok := h.outboxes[id]; ok {
		old.close()
	}

	outbox.offer(h.snapshot())
	h.outboxes[id] = outbox
	return outbox
}

func (h *Hub) Unsubscribe(id ClientID) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	outbox, ok := h.outboxes[id]
	if !ok {
		return false
	}
	outbox.close()
	delete(h.outboxes, id)
	return true
}

// Close drops every subscription.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, outbox := range h.outboxes {
		outbox.close()
		delete(h.outboxes, id)
	}
}

func (h *Hub) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.outboxes)
}
