package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedQueueSendReceive(t *testing.T) {
	q := NewBoundedQueue[int](2)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, 1))
	require.NoError(t, q.Send(ctx, 2))
	assert.Equal(t, 2, q.Len())

	v, ok := q.Receive(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBoundedQueueReleaseDrainsThenCloses(t *testing.T) {
	q := NewBoundedQueue[int](4)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 1))
	require.NoError(t, q.Send(ctx, 2))

	q.Release()
	assert.True(t, q.Released())

	// Release must not drop items already enqueued before it was called.
	v, ok := q.Receive(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Receive(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Receive(ctx)
	assert.False(t, ok, "receive on a drained, released queue must report closed")
}

func TestBoundedQueueSendAfterReleaseFails(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.Release()
	err := q.Send(context.Background(), 1)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestBoundedQueueReleaseIsIdempotent(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.Release()
	assert.NotPanics(t, func() { q.Release() })
}

func TestBoundedQueueBackpressure(t *testing.T) {
	q := NewBoundedQueue[int](1)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 1))

	sent := make(chan struct{})
	go func() {
		_ = q.Send(ctx, 2) // must block until the first item is received
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send on a full queue returned before space was freed")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = q.Receive(ctx)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("blocked send did not unblock after space was freed")
	}
}

func TestBoundedQueueSendUnblocksOnContextCancel(t *testing.T) {
	q := NewBoundedQueue[int](1)
	require.NoError(t, q.Send(context.Background(), 1)) // fill it

	ctx, cancel := context.WithCancel(context.Background())
	sendErr := make(chan error, 1)
	go func() { sendErr <- q.Send(ctx, 2) }()

	cancel()

	select {
	case err := <-sendErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full queue did not unblock when its context was cancelled")
	}
}
