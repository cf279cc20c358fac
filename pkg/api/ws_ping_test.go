package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedPinger fails the pings whose 1-based index is listed in fail.
type scriptedPinger struct {
	mu    sync.Mutex
	calls int
	fail  func(n int) bool
}

func (p *scriptedPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	if p.fail(n) {
		return errors.New("failed to wait for pong: context deadline exceeded")
	}
	return nil
}

func (p *scriptedPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestKeepAliveDropsUnresponsivePeer(t *testing.T) {
	s := &Server{logger: zap.NewNop(), pingInterval: 5 * time.Millisecond}
	p := &scriptedPinger{fail: func(int) bool { return true }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dead := make(chan struct{})
	s.keepAlive(ctx, p, "s1", func() { close(dead) })

	select {
	case <-dead:
	case <-time.After(2 * time.Second):
		t.Fatal("peer was not dropped")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, maxMissedPings, p.count())
}

func TestKeepAliveResetsOnPong(t *testing.T) {
	s := &Server{logger: zap.NewNop(), pingInterval: 5 * time.Millisecond}
	// Every other ping fails, so misses never run consecutively.
	p := &scriptedPinger{fail: func(n int) bool { return n%2 == 0 }}

	ctx, cancel := context.WithCancel(context.Background())
	var dropped atomic.Bool
	s.keepAlive(ctx, p, "s1", func() { dropped.Store(true) })

	require.Eventually(t, func() bool { return p.count() >= 4*maxMissedPings }, 2*time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, dropped.Load())
}

func TestKeepAliveStopsWithContext(t *testing.T) {
	s := &Server{logger: zap.NewNop(), pingInterval: time.Millisecond}
	p := &scriptedPinger{fail: func(int) bool { return false }}

	ctx, cancel := context.WithCancel(context.Background())
	s.keepAlive(ctx, p, "s1", func() { t.Error("dead called after cancel") })
	require.Eventually(t, func() bool { return p.count() > 0 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	n := p.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, p.count())
}
