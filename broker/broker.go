package broker

import (
	"context"
	"sync"
	"time"

	"github.com/fornellas/fdm/queue"
)

type subscriber[T any] struct {
	queue  *queue.Queue[T]
	ch     chan T
	cancel context.CancelFunc
	doneCh chan struct{}
}

func (s *subscriber[T]) pump(ctx context.Context) {
	defer close(s.doneCh)
	defer close(s.ch)
	for {
		t, ok := s.queue.Pop(ctx, time.Minute)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case s.ch <- t:
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscriber[T]) stop() {
	s.cancel()
	<-s.doneCh
}

// Broker implements a simple fan-out message broker.
// Each subscriber receives messages in publishing order. Publishing never blocks on a slow
// subscriber: messages are queued per subscriber until they are read.
type Broker[T any] struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber[T]
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: make(map[string]*subscriber[T]),
	}
}

// Subscribe registers a new subscriber with the given name and channel buffer size.
// It returns a receive-only channel that will receive published messages. Subscribing again with
// the same name replaces (and closes) the previous subscription.
func (b *Broker[T]) Subscribe(name string, size int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subscribers[name]; ok {
		s.stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &subscriber[T]{
		queue:  queue.NewQueue[T](),
		ch:     make(chan T, size),
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	go s.pump(ctx)
	b.subscribers[name] = s

	return s.ch
}

// Unsubscribe removes the named subscriber and closes its channel.
func (b *Broker[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subscribers[name]; ok {
		s.stop()
		delete(b.subscribers, name)
	}
}

// Publish queues a message to all registered subscribers.
func (b *Broker[T]) Publish(t T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subscribers {
		s.queue.Push(t)
	}
}

// Close closes all subscriber channels, signaling that no more messages will be published.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subscribers {
		s.stop()
	}

	b.subscribers = make(map[string]*subscriber[T])
}
