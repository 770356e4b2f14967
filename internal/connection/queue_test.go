package connection

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(s string) QueuedItem {
	return QueuedItem{Data: []byte(s)}
}

func drainAll(t *testing.T, q *OutboundQueue) []string {
	t.Helper()
	var out []string
	_, err := q.Drain(func(it QueuedItem) error {
		out = append(out, string(it.Data))
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestOutboundQueue_FIFO(t *testing.T) {
	q := NewOutboundQueue(50)
	for i := 0; i < 10; i++ {
		assert.False(t, q.Push(item(fmt.Sprint(i))))
	}

	got := drainAll(t, q)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestOutboundQueue_EvictsOldestAtCapacity(t *testing.T) {
	q := NewOutboundQueue(50)
	for i := 1; i <= 50; i++ {
		require.False(t, q.Push(item(fmt.Sprint(i))))
	}

	assert.True(t, q.Push(item("51")))
	assert.Equal(t, 50, q.Len())
	assert.Equal(t, int64(1), q.Evicted())

	got := drainAll(t, q)
	require.Len(t, got, 50)
	assert.Equal(t, "2", got[0])
	assert.Equal(t, "51", got[49])
}

func TestOutboundQueue_DrainKeepsItemsFromFirstFailure(t *testing.T) {
	q := NewOutboundQueue(10)
	for _, s := range []string{"a", "b", "c", "d"} {
		q.Push(item(s))
	}

	errWrite := errors.New("write failed")
	var sent []string
	n, err := q.Drain(func(it QueuedItem) error {
		if string(it.Data) == "c" {
			return errWrite
		}
		sent = append(sent, string(it.Data))
		return nil
	})

	require.ErrorIs(t, err, errWrite)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, sent)
	assert.Equal(t, []string{"c", "d"}, drainAll(t, q))
}

func TestOutboundQueue_RemoveAnnouncement(t *testing.T) {
	q := NewOutboundQueue(10)
	q.Push(item("a"))
	q.Push(QueuedItem{Data: []byte("sub-1"), AnnouncementID: 1})
	q.Push(item("b"))
	q.Push(QueuedItem{Data: []byte("sub-2"), AnnouncementID: 2})

	assert.Equal(t, 1, q.Remove(1))
	assert.Equal(t, 0, q.Remove(7))
	assert.Equal(t, []string{"a", "b", "sub-2"}, drainAll(t, q))
}

func TestOutboundQueue_Clear(t *testing.T) {
	q := NewOutboundQueue(3)
	q.Push(item("a"))
	q.Push(item("b"))

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, drainAll(t, q))
}

func TestOutboundQueue_MinCapacity(t *testing.T) {
	q := NewOutboundQueue(0)
	q.Push(item("a"))
	assert.True(t, q.Push(item("b")))
	assert.Equal(t, []string{"b"}, drainAll(t, q))
}
