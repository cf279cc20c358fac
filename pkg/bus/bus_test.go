package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan *Message, 1)
	sub, err := b.Subscribe(ctx, "test.subject", func(msg *Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.Equal(t, "test.subject", sub.Subject())

	require.NoError(t, b.Publish(ctx, "test.subject", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", string(msg.Data))
		assert.Equal(t, "test.subject", msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestMemoryBus_TurnSubjectWildcard(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	var received atomic.Int32
	done := make(chan struct{}, 2)
	sub, err := b.Subscribe(ctx, "repcoach.sessions.*.turns", func(*Message) {
		received.Add(1)
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, TurnSubject("", "s1"), []byte("a")))
	require.NoError(t, b.Publish(ctx, TurnSubject("repcoach", "s2"), []byte("b")))
	require.NoError(t, b.Publish(ctx, "repcoach.sessions.s1.other", []byte("c")))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for turns")
		}
	}
	assert.Equal(t, int32(2), received.Load())
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	var received atomic.Int32
	sub, err := b.Subscribe(ctx, "x", func(*Message) { received.Add(1) })
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, b.Publish(ctx, "x", []byte("ignored")))
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, received.Load())
}

func TestMemoryBus_ContextEndsSubscription(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := b.Subscribe(ctx, "x", func(*Message) {})
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subscriptions) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBus_Close(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	_, err := b.Subscribe(ctx, "x", func(*Message) {})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, "x", nil), ErrClosed)
	_, err = b.Subscribe(ctx, "x", func(*Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBus_ConcurrentPublishers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	var received atomic.Int32
	sub, err := b.Subscribe(ctx, "load.>", func(*Message) { received.Add(1) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 25; j++ {
				if err := b.Publish(ctx, "load.a.b", []byte("m")); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Eventually(t, func() bool { return received.Load() == 100 }, time.Second, 5*time.Millisecond)
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b", "a.b", true},
		{"a.*", "a.b", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject), "%s vs %s", tt.pattern, tt.subject)
	}
}

func TestNewDefaultsToMemory(t *testing.T) {
	b, err := New(DefaultConfig())
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*MemoryBus)
	assert.True(t, ok)
}

func TestNewNATSUnreachable(t *testing.T) {
	b, err := New(Config{URL: "nats://127.0.0.1:1", Name: "test", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Contains(t, err.Error(), "nats connect")
}
