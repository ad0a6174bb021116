package utils

import (
	"github.com/sasha-s/go-deadlock"
)

// DefaultTopicBuffer is the number of values a subscriber may fall behind
// before further values are dropped for it.
const DefaultTopicBuffer = 64

// Topic fans values out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the value and the miss is counted.
type Topic[T any] struct {
	subscribers map[chan T]struct{}
	mutex       deadlock.Mutex
	buffer      int
	dropped     uint64
}

func NewTopic[T any]() *Topic[T] {
	return NewBufferedTopic[T](DefaultTopicBuffer)
}

func NewBufferedTopic[T any](buffer int) *Topic[T] {
	return &Topic[T]{
		subscribers: make(map[chan T]struct{}),
		buffer:      buffer,
	}
}

func (t *Topic[T]) Publish(value T) {
	t.mutex.Lock()
	for subscriber := range t.subscribers {
		select {
		case subscriber <- value:
		default:
			t.dropped++
		}
	}
	t.mutex.Unlock()
}

// Dropped returns the number of deliveries lost to full subscribers.
func (t *Topic[T]) Dropped() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.dropped
}

type Subscriber[T any] struct {
	channel chan T
	topic   *Topic[T]
}

func (t *Topic[T]) Subscribe() *Subscriber[T] {
	channel := make(chan T, t.buffer)
	t.mutex.Lock()
	t.subscribers[channel] = struct{}{}
	t.mutex.Unlock()

	return &Subscriber[T]{channel, t}
}

func (t *Subscriber[T]) Recv() <-chan T {
	return t.channel
}

func (t *Subscriber[T]) Done() {
	topic := t.topic
	topic.mutex.Lock()
	delete(topic.subscribers, t.channel)
	topic.mutex.Unlock()
}
