package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/protocol"
)

func TestPublishConsumeFIFO(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.True(t, b.Publish(ctx, protocol.CommandStartedEvent("t", "a")))
	require.True(t, b.Publish(ctx, protocol.CommandStartedEvent("t", "b")))

	e1, ok := b.Consume(ctx)
	require.True(t, ok)
	require.Equal(t, "a", e1.Command.CommandRef)

	e2, ok := b.Consume(ctx)
	require.True(t, ok)
	require.Equal(t, "b", e2.Command.CommandRef)
}

func TestConsumeRespectsContextCancellation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := b.Consume(ctx)
	require.False(t, ok)
}

func TestPublishBlocksUntilConsumed(t *testing.T) {
	b := New()
	ctx := context.Background()
	for i := 0; i < Capacity; i++ {
		require.True(t, b.Publish(ctx, protocol.InvokeDoneEvent("t")))
	}

	published := make(chan bool, 1)
	go func() {
		published <- b.Publish(ctx, protocol.InvokeDoneEvent("t"))
	}()

	select {
	case <-published:
		t.Fatal("publish should have blocked with a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := b.Consume(ctx)
	require.True(t, ok)

	select {
	case ok := <-published:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("publish never unblocked after a consume freed space")
	}
}

func TestPublishNeverDropsOnClose(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.True(t, b.Publish(ctx, protocol.InvokeDoneEvent("t")))
	b.Close()

	e, ok := b.Consume(ctx)
	require.True(t, ok)
	require.True(t, e.IsInvokeDone())
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New()
	b.Close()
	b.Close()
}

func TestPublishUnblocksOnClose(t *testing.T) {
	b := New()
	ctx := context.Background()
	for i := 0; i < Capacity; i++ {
		require.True(t, b.Publish(ctx, protocol.InvokeDoneEvent("t")))
	}

	result := make(chan bool, 1)
	go func() {
		result <- b.Publish(ctx, protocol.InvokeDoneEvent("t"))
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case ok := <-result:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("publish never unblocked after close")
	}
}

func TestConcurrentPublishConsume(t *testing.T) {
	b := New()
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Publish(ctx, protocol.InvokeDoneEvent("t"))
		}()
	}

	consumed := 0
	done := make(chan struct{})
	go func() {
		for consumed < n {
			if _, ok := b.Consume(ctx); ok {
				consumed++
			}
		}
		close(done)
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never drained all published events")
	}
	require.Equal(t, n, consumed)
}
