package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic(t *testing.T) {
	topic := NewBufferedTopic[int](2)
	a := topic.Subscribe()
	b := topic.Subscribe()

	topic.Publish(1)
	assert.Equal(t, 1, <-a.Recv())
	assert.Equal(t, 1, <-b.Recv())

	b.Done()
	topic.Publish(2)
	topic.Publish(3)

	// a is now full; the next value is dropped instead of blocking.
	topic.Publish(4)
	assert.Equal(t, uint64(1), topic.Dropped())
	assert.Equal(t, 2, <-a.Recv())
	assert.Equal(t, 3, <-a.Recv())
	assert.Len(t, b.Recv(), 0)
}

func TestSession(t *testing.T) {
	session := NewSession(context.Background())
	assert.False(t, session.IsDone())

	session.Cancel()
	<-session.Done()
	assert.True(t, session.IsDone())
}
