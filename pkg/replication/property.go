package replication

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Property is a single replicated value. Get and Set are meant to be called
// from the authority goroutine only.
type Property[T any] struct {
	hub   *Hub
	name  string
	value T
	hooks []func(T)
}

// NewProperty registers a field on the hub and publishes its initial value
// so that it is part of every snapshot.
func NewProperty[T any](hub *Hub, name string, initial T) *Property[T] {
	hub.register(name)
	p := &Property[T]{
		hub:   hub,
		name:  name,
		value: initial,
	}

	data, err := cbor.Marshal(initial)
	if err != nil {
		panic(fmt.Sprintf("replication: cannot encode initial %s: %v", name, err))
	}
	hub.publish(name, nil, data, false)
	return p
}

func (p *Property[T]) Name() string {
	return p.name
}

func (p *Property[T]) Get() T {
	return p.value
}

// OnChanged registers a hook that runs synchronously on the server after
// every change.
func (p *Property[T]) OnChanged(hook func(T)) {
	p.hooks = append(p.hooks, hook)
}

func (p *Property[T]) Set(value T) error {
	if p.hub.role != RoleAuthority {
		return ErrNotAuthority
	}

	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", p.name, err)
	}

	p.value = value
	if !p.hub.publish(p.name, nil, data, false) {
		return nil
	}

	for _, hook := range p.hooks {
		hook(value)
	}
	return nil
}

// Map is a keyed collection of replicated values. Each key is delivered as
// its own point update.
type Map[K comparable, V any] struct {
	hub    *Hub
	name   string
	values map[K]V
	hooks  []func(K, V, bool)
}

func NewMap[K comparable, V any](hub *Hub, name string) *Map[K, V] {
	hub.register(name)
	return &Map[K, V]{
		hub:    hub,
		name:   name,
		values: make(map[K]V),
	}
}

func (m *Map[K, V]) Name() string {
	return m.name
}

// OnChanged registers a hook called with the key, the new value and
// whether the key was deleted.
func (m *Map[K, V]) OnChanged(hook func(key K, value V, deleted bool)) {
	m.hooks = append(m.hooks, hook)
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	value, ok := m.values[key]
	return value, ok
}

func (m *Map[K, V]) Len() int {
	return len(m.values)
}

// Keys returns the keys in no particular order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}
	return keys
}

// Values returns a copy of the collection.
func (m *Map[K, V]) Values() map[K]V {
	values := make(map[K]V, len(m.values))
	for key, value := range m.values {
		values[key] = value
	}
	return values
}

func (m *Map[K, V]) Set(key K, value V) error {
	if m.hub.role != RoleAuthority {
		return ErrNotAuthority
	}

	rawKey, err := cbor.Marshal(key)
	if err != nil {
		return fmt.Errorf("could not encode %s key: %w", m.name, err)
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode %s value: %w", m.name, err)
	}

	m.values[key] = value
	if !m.hub.publish(m.name, rawKey, data, false) {
		return nil
	}

	for _, hook := range m.hooks {
		hook(key, value, false)
	}
	return nil
}

func (m *Map[K, V]) Delete(key K) error {
	if m.hub.role != RoleAuthority {
		return ErrNotAuthority
	}

	value, ok := m.values[key]
	if !ok {
		return nil
	}

	rawKey, err := cbor.Marshal(key)
	if err != nil {
		return fmt.Errorf("could not encode %s key: %w", m.name, err)
	}

	delete(m.values, key)
	m.hub.publish(m.name, rawKey, nil, true)

	for _, hook := range m.hooks {
		hook(key, value, true)
	}
	return nil
}

// Clear deletes every key as one batch.
func (m *Map[K, V]) Clear() error {
	if m.hub.role != RoleAuthority {
		return ErrNotAuthority
	}

	var err error
	m.hub.Batch(func() {
		keys := m.Keys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		for _, key := range keys {
			if e := m.Delete(key); e != nil && err == nil {
				err = e
			}
		}
	})
	return err
}
