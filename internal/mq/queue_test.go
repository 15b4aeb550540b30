package mq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAll(t *testing.T) {
	t.Parallel()
	q := New(WithManualDelivery())

	var got []string
	q.Subscribe(func(m Message) { got = append(got, m.Payload) })

	for _, p := range []string{"1", "2", "3"} {
		id, err := q.Enqueue(Message{From: "alice", To: []string{"bob"}, Payload: p, Kind: KindTransfer, Delay: time.Hour})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	require.Len(t, q.Pending(), 3)
	assert.False(t, q.Pending()[0].Timestamp.IsZero())

	assert.Equal(t, 3, q.ProcessAll())
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.Empty(t, q.Pending())
	assert.Equal(t, 0, q.ProcessAll())
}

func TestDelayedDelivery(t *testing.T) {
	t.Parallel()
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var got []Message
	done := make(chan struct{})
	q.Subscribe(func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		close(done)
	})

	_, err := q.Enqueue(Message{From: "a", To: []string{"b"}, Payload: "5", Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.True(t, got[0].Addressed("b"))
	assert.False(t, got[0].Addressed("c"))
	assert.Empty(t, q.Pending())
}

func TestUnsubscribeAndClose(t *testing.T) {
	t.Parallel()
	q := New(WithManualDelivery())

	calls := 0
	unsubscribe := q.Subscribe(func(Message) { calls++ })
	_, err := q.Enqueue(Message{Payload: "x"})
	require.NoError(t, err)
	unsubscribe()
	q.ProcessAll()
	assert.Equal(t, 0, calls)

	_, err = q.Enqueue(Message{Payload: "y"})
	require.NoError(t, err)
	q.Close()
	assert.Empty(t, q.Pending())
	_, err = q.Enqueue(Message{Payload: "z"})
	assert.ErrorIs(t, err, ErrClosed)
}
