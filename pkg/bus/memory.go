package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

const memoryBufferSize = 256

// MemoryBus is an in-process MessageBus. Each subscription delivers on its
// own goroutine; a full buffer drops messages rather than block publishers.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	closed        atomic.Bool
	wg            sync.WaitGroup
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscriptions: make(map[string][]*memorySubscription)}
}

func (b *MemoryBus) Publish(_ context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	msg := &Message{Subject: subject, Data: append([]byte(nil), data...)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, subs := range b.subscriptions {
		if !matchSubject(pattern, subject) {
			continue
		}
		for _, sub := range subs {
			select {
			case sub.messages <- msg:
			default:
			}
		}
	}
	return nil
}

// Subscribe delivers until Unsubscribe, Close, or ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		subject:  subject,
		messages: make(chan *Message, memoryBufferSize),
		handler:  handler,
		bus:      b,
	}

	b.mu.Lock()
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.run(ctx)
	}()
	return sub, nil
}

// Close stops every subscription and waits for their goroutines.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}

	b.mu.Lock()
	for subject, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.close()
		}
		delete(b.subscriptions, subject)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

type memorySubscription struct {
	subject  string
	messages chan *Message
	handler  MessageHandler
	bus      *MemoryBus
	once     sync.Once
}

// close must be called with the bus lock held.
func (s *memorySubscription) close() {
	s.once.Do(func() { close(s.messages) })
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subscriptions[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.bus.subscriptions[s.subject]) == 0 {
		delete(s.bus.subscriptions, s.subject)
	}
	s.close()
	return nil
}

func (s *memorySubscription) Subject() string {
	return s.subject
}

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				return
			}
			s.handler(msg)
		case <-ctx.Done():
			_ = s.Unsubscribe()
			return
		}
	}
}
