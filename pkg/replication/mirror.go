package replication

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// Mirror is the read-only copy of replicated state held by a client.
type Mirror struct {
	mutex    deadlock.Mutex
	values   map[string]Change
	watchers map[string][]func(Change)
}

func NewMirror() *Mirror {
	return &Mirror{
		values:   make(map[string]Change),
		watchers: make(map[string][]func(Change)),
	}
}

// Apply stores every change that is newer than what the mirror holds for
// its slot and runs the watchers for it. It returns the number of changes
// applied.
func (m *Mirror) Apply(changes []Change) int {
	applied := 0
	for _, change := range changes {
		slot := change.slot()

		m.mutex.Lock()
		if current, ok := m.values[slot]; ok && current.Seq >= change.Seq {
			m.mutex.Unlock()
			continue
		}
		m.values[slot] = change
		watchers := m.watchers[change.Field]
		m.mutex.Unlock()

		applied++
		for _, watcher := range watchers {
			watcher(change)
		}
	}
	return applied
}

func (m *Mirror) watch(field string, fn func(Change)) {
	m.mutex.Lock()
	m.watchers[field] = append(m.watchers[field], fn)
	m.mutex.Unlock()
}

func (m *Mirror) lookup(field string, key []byte) (Change, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	change, ok := m.values[Change{Field: field, Key: key}.slot()]
	if !ok || change.Deleted {
		return Change{}, false
	}
	return change, true
}

// Watch registers the local on-changed hook for a property.
func Watch[T any](m *Mirror, field string, hook func(T)) {
	m.watch(field, func(change Change) {
		var value T
		if err := cbor.Unmarshal(change.Value, &value); err != nil {
			log.Warn().Err(err).Str("field", field).Msg("could not decode replicated value")
			return
		}
		hook(value)
	})
}

// WatchMap registers the local on-changed hook for a keyed collection.
func WatchMap[K comparable, V any](m *Mirror, field string, hook func(key K, value V, deleted bool)) {
	m.watch(field, func(change Change) {
		var key K
		if err := cbor.Unmarshal(change.Key, &key); err != nil {
			log.Warn().Err(err).Str("field", field).Msg("could not decode replicated key")
			return
		}

		var value V
		if !change.Deleted {
			if err := cbor.Unmarshal(change.Value, &value); err != nil {
				log.Warn().Err(err).Str("field", field).Msg("could not decode replicated value")
				return
			}
		}
		hook(key, value, change.Deleted)
	})
}

func Get[T any](m *Mirror, field string) (T, bool) {
	var value T
	change, ok := m.lookup(field, nil)
	if !ok {
		return value, false
	}
	if err := cbor.Unmarshal(change.Value, &value); err != nil {
		return value, false
	}
	return value, true
}

// GetMap collects the live entries of a keyed collection.
func GetMap[K comparable, V any](m *Mirror, field string) map[K]V {
	m.mutex.Lock()
	changes := make([]Change, 0)
	for _, change := range m.values {
		if change.Field == field && !change.Deleted && len(change.Key) > 0 {
			changes = append(changes, change)
		}
	}
	m.mutex.Unlock()

	values := make(map[K]V, len(changes))
	for _, change := range changes {
		var key K
		var value V
		if cbor.Unmarshal(change.Key, &key) != nil || cbor.Unmarshal(change.Value, &value) != nil {
			continue
		}
		values[key] = value
	}
	return values
}
